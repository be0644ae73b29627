// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package config declares the shape of the configuration Atlas's core
// consumes. Parsing it from a file (the teacher does this with viper in
// internal/drone/config.go) is the host daemon's job, not the core's
// (spec.md §1); this package only carries the struct and its defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object handed to the ingestion
// orchestrator and storage coordinator at construction time.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Embedder EmbedderConfig `mapstructure:"embedder"`

	// WatchPaths lists the roots the file watcher observes. Mirrors the
	// teacher's drone Config.WatchPaths.
	WatchPaths []string `mapstructure:"watch_paths"`
}

type StorageConfig struct {
	Vector   VectorConfig     `mapstructure:"vector"`
	Postgres PostgresConfig   `mapstructure:"postgres"`
	Cache    *RedisConfig     `mapstructure:"cache"`    // nil => "none"
	Analytics *AnalyticsConfig `mapstructure:"analytics"` // nil => "none"
	Fulltext *FulltextConfig  `mapstructure:"fulltext"`  // nil => "none"
}

type VectorConfig struct {
	Dimensions      int     `mapstructure:"dimensions"`
	Distance        string  `mapstructure:"distance"` // cosine | dot | euclidean
	HNSWM           int     `mapstructure:"hnsw_m"`
	HNSWEfConstruct int     `mapstructure:"hnsw_ef_construct"`
	Quantisation    bool    `mapstructure:"quantisation"`
	Collection      string  `mapstructure:"collection"`
	Address         string  `mapstructure:"address"` // gRPC address
}

// PostgresConfig is required: spec.md §6 names the metadata tier required.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	PoolSize        int           `mapstructure:"pool_size"`
	SSL             bool          `mapstructure:"ssl"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout_ms"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout_ms"`
}

func (p PostgresConfig) defaultedPort() int {
	if p.Port == 0 {
		return 5432
	}
	return p.Port
}

// Port5432 returns the configured port, defaulting to 5432.
func (p PostgresConfig) Port5432() int { return p.defaultedPort() }

// DSN renders the pool connection string pgxpool.New expects.
func (p PostgresConfig) DSN() string {
	sslmode := "disable"
	if p.SSL {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.defaultedPort(), p.Database, sslmode)
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

func (r RedisConfig) portOr6379() int {
	if r.Port == 0 {
		return 6379
	}
	return r.Port
}

// Port6379 returns the configured port, defaulting to 6379.
func (r RedisConfig) Port6379() int { return r.portOr6379() }

// TTLOrDefault returns DefaultTTL, defaulting to one hour per spec.md §6.
func (r RedisConfig) TTLOrDefault() time.Duration {
	if r.DefaultTTL == 0 {
		return 3600 * time.Second
	}
	return r.DefaultTTL
}

type AnalyticsConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// FulltextConfig points at the bleve index's on-disk location; an empty
// IndexPath means an in-memory index (suitable for tests, not persistence).
type FulltextConfig struct {
	IndexPath string `mapstructure:"index_path"`
}

type PipelineConfig struct {
	InitialConcurrency int           `mapstructure:"initial_concurrency"`
	MinConcurrency     int           `mapstructure:"min_concurrency"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	MonitorInterval    time.Duration `mapstructure:"monitor_ms"`
}

// MonitorIntervalOrDefault returns MonitorInterval, defaulting to 30s per spec.md §6.
func (p PipelineConfig) MonitorIntervalOrDefault() time.Duration {
	if p.MonitorInterval == 0 {
		return 30 * time.Second
	}
	return p.MonitorInterval
}

type IngestConfig struct {
	DebounceInterval time.Duration `mapstructure:"debounce_ms"`
	BatchSize        int           `mapstructure:"batch_size"`
	BatchFlushInterval time.Duration `mapstructure:"batch_flush_ms"`
}

type EmbedderConfig struct {
	DefaultModel string        `mapstructure:"default_model"`
	MaxBatch     int           `mapstructure:"max_batch"`
	Timeout      time.Duration `mapstructure:"timeout_ms"`
}
