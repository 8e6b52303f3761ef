package utils

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordUsesConfiguredCost(t *testing.T) {
	hashed, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hashed))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != hashCost {
		t.Fatalf("cost = %d, want %d", cost, hashCost)
	}
	if !CheckPassword("correct horse battery staple", hashed) {
		t.Fatal("correct password must verify")
	}
	if CheckPassword("wrong", hashed) {
		t.Fatal("wrong password must not verify")
	}
}
