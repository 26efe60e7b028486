package core

import (
	"time"
)

type Config struct {
	Server   ServerConfig
	Snapshot SnapshotConfig
	Dedup    DedupConfig
	Fetch    FetchConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SnapshotConfig struct {
	// Path of the sqlite snapshot file; empty disables persistence.
	Path string
}

type DedupConfig struct {
	// Capacity of the snippet dedup index; beyond it the index turns lossy
	// and enqueue falls back to exact scans.
	Capacity          int
	FalsePositiveRate float64
}

type FetchConfig struct {
	// MaxPages caps upstream pagination per source. A collaborator policy,
	// not an engine invariant.
	MaxPages int
	PageSize int
	// RequestsPerSecond throttles upstream calls.
	RequestsPerSecond float64
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Path: "./tubelist.db",
		},
		Dedup: DedupConfig{
			Capacity:          10000,
			FalsePositiveRate: 0.001,
		},
		Fetch: FetchConfig{
			MaxPages:          5,
			PageSize:          50,
			RequestsPerSecond: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
