// Package worker runs background job processing for announcement
// delivery. The actual transport (push, email) is an external
// collaborator; the worker resolves recipients and marks delivery state.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gracehub/backend/internal/messages"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/queue"
)

// Deliverer sends an announcement to a set of recipients. Implementations
// wrap push or email providers.
type Deliverer interface {
	Deliver(ctx context.Context, a *models.Announcement, recipients []uuid.UUID) error
}

// LogDeliverer is the default Deliverer; it only records the fan-out.
type LogDeliverer struct {
	Logger *zap.Logger
}

// Deliver logs the would-be delivery.
func (d *LogDeliverer) Deliver(_ context.Context, a *models.Announcement, recipients []uuid.UUID) error {
	d.Logger.Info("announcement delivered",
		zap.String("announcement_id", a.ID.String()),
		zap.Int("recipients", len(recipients)))
	return nil
}

// AnnouncementProcessor processes announcement delivery jobs: resolve
// recipients, hand off to the deliverer, mark SENT.
type AnnouncementProcessor struct {
	repo      *messages.Repository
	deliverer Deliverer
	queue     *queue.Queue
	logger    *zap.Logger
}

// NewAnnouncementProcessor creates an announcement delivery processor.
func NewAnnouncementProcessor(repo *messages.Repository, deliverer Deliverer, q *queue.Queue, logger *zap.Logger) *AnnouncementProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deliverer == nil {
		deliverer = &LogDeliverer{Logger: logger}
	}
	return &AnnouncementProcessor{repo: repo, deliverer: deliverer, queue: q, logger: logger}
}

// Process executes one announcement delivery job.
func (p *AnnouncementProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAnnouncement {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AnnouncementPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	a, err := p.repo.Get(ctx, payload.AnnouncementID)
	if err != nil {
		return fmt.Errorf("load announcement: %w", err)
	}
	if a == nil {
		return fmt.Errorf("announcement not found: %s", payload.AnnouncementID)
	}
	if a.Status == models.AnnouncementSent {
		p.logger.Info("announcement already sent", zap.String("announcement_id", a.ID.String()))
		return nil
	}

	recipients, err := p.repo.Recipients(ctx, a)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if err := p.deliverer.Deliver(ctx, a, recipients); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	if err := p.repo.MarkSent(ctx, a.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AnnouncementProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("announcement worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
