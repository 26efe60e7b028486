package core

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Default host wrong, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Default port wrong, got %d", cfg.Server.Port)
	}
	if cfg.Snapshot.Path == "" {
		t.Error("Default snapshot path should be set")
	}
	if cfg.Dedup.Capacity <= 0 {
		t.Errorf("Default dedup capacity must be positive, got %d", cfg.Dedup.Capacity)
	}
	if cfg.Dedup.FalsePositiveRate <= 0 || cfg.Dedup.FalsePositiveRate >= 1 {
		t.Errorf("Default false positive rate must be in (0,1), got %f", cfg.Dedup.FalsePositiveRate)
	}
	if cfg.Fetch.MaxPages != 5 {
		t.Errorf("Default pagination cap wrong, got %d", cfg.Fetch.MaxPages)
	}
	if cfg.Fetch.PageSize <= 0 {
		t.Errorf("Default page size must be positive, got %d", cfg.Fetch.PageSize)
	}
	if cfg.Fetch.RequestsPerSecond <= 0 {
		t.Errorf("Default fetch rate must be positive, got %f", cfg.Fetch.RequestsPerSecond)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Default log level wrong, got %q", cfg.Log.Level)
	}
}
