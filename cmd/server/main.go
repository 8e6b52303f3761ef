// Package main runs the membership platform HTTP server with websocket
// support and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gracehub/backend/config"
	"github.com/gracehub/backend/internal/auth"
	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/checkins"
	"github.com/gracehub/backend/internal/churches"
	"github.com/gracehub/backend/internal/events"
	"github.com/gracehub/backend/internal/idempotency"
	"github.com/gracehub/backend/internal/lifegroups"
	"github.com/gracehub/backend/internal/members"
	"github.com/gracehub/backend/internal/messages"
	"github.com/gracehub/backend/internal/middleware"
	"github.com/gracehub/backend/internal/pathways"
	"github.com/gracehub/backend/internal/ratelimit"
	"github.com/gracehub/backend/internal/realtime"
	"github.com/gracehub/backend/internal/services"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/database"
	"github.com/gracehub/backend/pkg/queue"
	"github.com/gracehub/backend/pkg/redis"
	"github.com/gracehub/backend/pkg/response"
	"github.com/gracehub/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Rate limiter
	limits := map[ratelimit.Category]ratelimit.Limit{
		ratelimit.CategoryAuth: {
			Requests: cfg.RateLimit.AuthRequests,
			Window:   time.Duration(cfg.RateLimit.AuthWindowMin) * time.Minute,
		},
		ratelimit.CategoryAPI: {
			Requests: cfg.RateLimit.APIRequests,
			Window:   time.Duration(cfg.RateLimit.APIWindowSec) * time.Second,
		},
		ratelimit.CategoryMobileMutation: {
			Requests: cfg.RateLimit.MobileRequests,
			Window:   time.Duration(cfg.RateLimit.MobileWindowSec) * time.Second,
		},
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(rdb.Client), limits, logger)

	// Idempotency ledger
	ledger := idempotency.NewLedger(idempotency.NewPGStore(pool), cfg.Idempotency.TTL, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Church registry (public, for the registration screen)
	churchRepo := churches.NewRepository(pool)
	churchHandler := churches.NewHandler(churchRepo)

	// Members
	memberRepo := members.NewRepository(pool)
	memberHandler := members.NewHandler(memberRepo)

	// Services and check-ins
	serviceRepo := services.NewRepository(pool)
	serviceHandler := services.NewHandler(serviceRepo)
	checkinRepo := checkins.NewRepository(pool)
	checkinHandler := checkins.NewHandler(checkinRepo, serviceRepo, ledger, hub)

	// Events and reservations
	eventRepo := events.NewRepository(pool)
	engine := events.NewEngine(eventRepo, events.NewPGStore(pool), logger)
	eventHandler := events.NewHandler(eventRepo, engine, ledger)

	// Life groups
	lifeGroupRepo := lifegroups.NewRepository(pool)
	lifeGroupHandler := lifegroups.NewHandler(lifeGroupRepo)

	// Pathways
	pathwayRepo := pathways.NewRepository(pool)
	pathwayHandler := pathways.NewHandler(pathwayRepo)

	// Announcements
	jobQueue := queue.NewQueue(rdb.Client, logger)
	messageRepo := messages.NewRepository(pool)
	messageHandler := messages.NewHandler(messageRepo, jobQueue, s3Client)

	jwtValidate := func(token string) (authz.Actor, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return authz.Actor{}, err
		}
		return claims.Actor(), nil
	}
	wsAuthorize := func(ctx context.Context, actor authz.Actor, serviceID uuid.UUID) error {
		svc, err := serviceRepo.Get(ctx, serviceID)
		if err != nil {
			return err
		}
		if svc == nil || (!actor.IsSuperAdmin() && !actor.SameTenant(svc.ChurchID)) {
			return apperr.E(apperr.KindNotFoundOrForbidden, "service not found or access denied")
		}
		return nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Church registry (public)
	router.GET("/churches", churchHandler.List)
	router.GET("/churches/:id/local-churches", churchHandler.LocalChurches)

	// Auth (public, tight rate limit)
	authGroup := router.Group("/auth")
	authGroup.Use(middleware.RateLimit(limiter, ratelimit.CategoryAuth))
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	api.Use(middleware.RateLimit(limiter, ratelimit.CategoryAPI))
	mobile := middleware.RateLimit(limiter, ratelimit.CategoryMobileMutation)
	{
		// Members
		api.GET("/me", memberHandler.Me)
		api.PUT("/me", memberHandler.UpdateMe)
		api.GET("/members", middleware.RequireMinRole(authz.RoleLeader), memberHandler.List)
		api.GET("/members/:id", middleware.RequireMinRole(authz.RoleLeader), memberHandler.Get)
		api.PUT("/members/:id/roles", middleware.RequireMinRole(authz.RoleAdmin), memberHandler.UpdateRoles)
		api.GET("/firsttimers",
			middleware.RequireAnyRole(authz.RoleVIP, authz.RoleAdmin, authz.RolePastor, authz.RoleSuperAdmin),
			memberHandler.FirstTimers)

		// Services and check-ins
		api.GET("/services", serviceHandler.List)
		api.POST("/services", middleware.RequireMinRole(authz.RoleAdmin), serviceHandler.Create)
		api.GET("/services/:id", serviceHandler.Get)
		api.POST("/services/:id/checkin", mobile, checkinHandler.Checkin)
		api.GET("/services/:id/checkin", checkinHandler.MyCheckin)
		api.GET("/services/:id/checkins", middleware.RequireMinRole(authz.RoleLeader), checkinHandler.Roster)

		// Events and RSVPs
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireMinRole(authz.RoleAdmin), eventHandler.Create)
		api.GET("/events/:id", eventHandler.Get)
		api.PUT("/events/:id", middleware.RequireMinRole(authz.RoleAdmin), eventHandler.Update)
		api.POST("/events/:id/rsvp", mobile, eventHandler.RSVP)
		api.DELETE("/events/:id/rsvp", mobile, eventHandler.CancelRSVP)
		api.GET("/events/:id/roster", middleware.RequireMinRole(authz.RoleLeader), eventHandler.Roster)

		// Life groups
		api.GET("/lifegroups", lifeGroupHandler.List)
		api.POST("/lifegroups", middleware.RequireMinRole(authz.RoleAdmin), lifeGroupHandler.Create)
		api.POST("/lifegroups/:id/request", mobile, lifeGroupHandler.Request)
		api.POST("/lifegroups/:id/approve", lifeGroupHandler.Approve)
		api.POST("/lifegroups/:id/leave", lifeGroupHandler.Leave)
		api.GET("/lifegroups/:id/members", lifeGroupHandler.Members)

		// Pathways
		api.GET("/pathways", pathwayHandler.List)
		api.POST("/pathways", middleware.RequireMinRole(authz.RoleAdmin), pathwayHandler.Create)
		api.GET("/pathways/:id", pathwayHandler.Get)
		api.POST("/pathways/:id/steps", middleware.RequireMinRole(authz.RoleAdmin), pathwayHandler.AddStep)
		api.POST("/pathways/:id/enroll", mobile, pathwayHandler.Enroll)
		api.POST("/pathways/:id/steps/:stepID/complete", pathwayHandler.CompleteStep)

		// Announcements
		api.GET("/announcements", messageHandler.List)
		api.POST("/announcements", middleware.RequireMinRole(authz.RoleLeader), messageHandler.Create)
		api.POST("/announcements/:id/send", middleware.RequireMinRole(authz.RoleLeader), messageHandler.Send)
		api.POST("/announcements/:id/attachment", middleware.RequireMinRole(authz.RoleLeader), messageHandler.AttachmentUploadURL)
		api.GET("/announcements/:id/attachment", messageHandler.AttachmentDownloadURL)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate, wsAuthorize))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
