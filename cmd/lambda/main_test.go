package main

import (
	"context"
	"errors"
	"testing"

	"github.com/johnwmail/haste/internal/config"
	"github.com/johnwmail/haste/internal/server"
)

func TestLambdaConfigDefaults(t *testing.T) {
	t.Setenv("HASTE_STORAGE_TYPE", "")
	t.Setenv("HASTE_SETTINGS_FILE", "")

	cfg, err := lambdaConfig()
	if err != nil {
		t.Fatalf("lambdaConfig failed: %v", err)
	}
	if cfg.StorageType != "dynamodb" {
		t.Errorf("Expected dynamodb storage by default, got %s", cfg.StorageType)
	}
	if cfg.SettingsFile != "" {
		t.Errorf("Expected in-memory settings, got %s", cfg.SettingsFile)
	}
}

func TestLambdaConfigExplicitStorage(t *testing.T) {
	t.Setenv("HASTE_STORAGE_TYPE", "s3")
	t.Setenv("HASTE_STORAGE_OPTIONS", "bucket=pastes,prefix=haste")

	cfg, err := lambdaConfig()
	if err != nil {
		t.Fatalf("lambdaConfig failed: %v", err)
	}
	if cfg.StorageType != "s3" {
		t.Errorf("Expected s3 storage, got %s", cfg.StorageType)
	}
	if cfg.StorageOptions["bucket"] != "pastes" {
		t.Errorf("Expected bucket option, got %v", cfg.StorageOptions)
	}
}

func TestSetupRetriesAfterFailure(t *testing.T) {
	t.Setenv("HASTE_STORAGE_TYPE", "memory")
	t.Cleanup(func() {
		buildApp = newApp
		ginLambdaV1, ginLambdaV2 = nil, nil
	})

	calls := 0
	buildApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("table not reachable")
		}
		return newApp(ctx, cfg)
	}

	if err := setup(context.Background()); err == nil {
		t.Fatal("Expected first setup to fail")
	}
	if ginLambdaV1 != nil {
		t.Fatal("Expected no adapter after failed setup")
	}
	if err := setup(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if ginLambdaV1 == nil || ginLambdaV2 == nil {
		t.Fatal("Expected adapters after successful setup")
	}
	if err := setup(context.Background()); err != nil {
		t.Fatalf("Expected initialized setup to be a no-op, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 build attempts, got %d", calls)
	}
}
