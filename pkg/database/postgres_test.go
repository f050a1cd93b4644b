package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/wonny/sigapi/pkg/config"
)

func TestNew_NoURL(t *testing.T) {
	_, err := New(context.Background(), &config.Config{})
	if !errors.Is(err, ErrNoDatabaseURL) {
		t.Errorf("Expected ErrNoDatabaseURL, got %v", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), &config.Config{Database: config.DatabaseConfig{URL: "://bad"}})
	if err == nil {
		t.Error("Expected parse error for invalid URL")
	}
}

func TestNew(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		t.Errorf("Failed to ping database: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	if !status.Healthy {
		t.Error("Expected database to be healthy")
	}

	if status.Stats.MaxConns != int32(cfg.Database.MaxConns) {
		t.Errorf("Expected MaxConns=%d, got %d", cfg.Database.MaxConns, status.Stats.MaxConns)
	}
}
