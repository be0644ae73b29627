// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Command atlas runs the knowledge-ingestion and semantic-search daemon:
// it wires the configured storage tiers behind the coordinator, starts the
// directory-watching orchestrator, and exits cleanly on SIGINT/SIGTERM.
// Grounded on the teacher's cmd/hive-server/main.go wiring order (open
// stores, construct the manager, wait on an interrupt, shut everything
// down), generalised from a gRPC + web server to Atlas's coordinator +
// orchestrator pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nskitch/atlas/internal/analytics"
	"github.com/nskitch/atlas/internal/cache"
	"github.com/nskitch/atlas/internal/chunker"
	"github.com/nskitch/atlas/internal/config"
	"github.com/nskitch/atlas/internal/coordinator"
	"github.com/nskitch/atlas/internal/embeddings"
	"github.com/nskitch/atlas/internal/fulltext"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/metadatastore"
	"github.com/nskitch/atlas/internal/model"
	"github.com/nskitch/atlas/internal/orchestrator"
	"github.com/nskitch/atlas/internal/search"
	"github.com/nskitch/atlas/internal/vectordb"
)

func main() {
	configPath := flag.String("config", "atlas.yaml", "path to the daemon configuration file")
	logPath := flag.String("log", "atlas.log", "path to the log file")
	flag.Parse()

	if _, err := logger.Init(*logPath); err != nil {
		fmt.Fprintf(os.Stderr, "atlas: failed to open log file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("atlas: config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord, embedder, err := buildCoordinator(ctx, cfg)
	if err != nil {
		logger.Fatalf("atlas: storage wiring: %v", err)
	}
	defer coord.Shutdown()

	engine := search.New(coord, embedder)
	_ = engine // exposed to the not-yet-written API surface (spec.md Non-goals exclude the transport layer from this core)

	orch := orchestrator.New(orchestrator.Options{
		WatchPaths:         cfg.WatchPaths,
		DebounceInterval:   cfg.Ingest.DebounceInterval,
		BatchSize:          cfg.Ingest.BatchSize,
		BatchFlushInterval: cfg.Ingest.BatchFlushInterval,
		Chunker:            chunker.New(chunker.DefaultOptions()),
		Embedder:           embedder,
		Lookup:             metadataLookup(coord),
		Store:              coord,
		Concurrency: orchestrator.Concurrency{
			Initial:   cfg.Pipeline.InitialConcurrency,
			Min:       cfg.Pipeline.MinConcurrency,
			Max:       cfg.Pipeline.MaxConcurrency,
			MonitorMs: int(cfg.Pipeline.MonitorIntervalOrDefault().Milliseconds()),
		},
	})

	if err := orch.Start(); err != nil {
		logger.Fatalf("atlas: orchestrator start: %v", err)
	}
	logger.Printf("atlas: watching %s", strings.Join(cfg.WatchPaths, ", "))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Printf("atlas: shutting down")
	orch.Stop()
}

func loadConfig(path string) (*config.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// metadataLookup returns the coordinator's Metadata field as the concrete
// *metadatastore.Store, which satisfies sourcetrack.SourceLookup for the
// orchestrator; it returns nil when the field holds another Backend.
func metadataLookup(c *coordinator.Coordinator) *metadatastore.Store {
	store, _ := c.Metadata.(*metadatastore.Store)
	return store
}

// buildCoordinator wires every configured storage tier into one
// coordinator.Coordinator and returns the embedder router alongside it.
func buildCoordinator(ctx context.Context, cfg *config.Config) (*coordinator.Coordinator, *embeddings.Router, error) {
	pool, err := pgxpool.New(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	meta, err := metadatastore.New(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	vector, err := buildVectorBackend(ctx, cfg.Storage.Vector)
	if err != nil {
		return nil, nil, fmt.Errorf("connect vector backend: %w", err)
	}

	var cacheBackend cache.Backend
	if cfg.Storage.Cache != nil {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Cache.Host, cfg.Storage.Cache.Port6379()),
			Password: cfg.Storage.Cache.Password,
		})
		rc, err := cache.New(ctx, client)
		if err != nil {
			return nil, nil, fmt.Errorf("connect cache: %w", err)
		}
		cacheBackend = rc
	}

	var fulltextBackend fulltext.Backend
	if cfg.Storage.Fulltext != nil {
		ft, err := fulltext.Open(cfg.Storage.Fulltext.IndexPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open fulltext index: %w", err)
		}
		fulltextBackend = ft
	}

	var analyticsBackend analytics.Backend
	if cfg.Storage.Analytics != nil {
		an, err := analytics.Open(cfg.Storage.Analytics.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open analytics store: %w", err)
		}
		analyticsBackend = an
	}

	coord := coordinator.New(cfg.Storage.Vector.Collection, vector, meta, cacheBackend, fulltextBackend, analyticsBackend)

	embedder := embeddings.NewRouter(buildEmbedderBackends(cfg.Embedder)...)

	return coord, embedder, nil
}

func buildVectorBackend(ctx context.Context, cfg config.VectorConfig) (vectordb.Backend, error) {
	if cfg.Address == "" {
		return vectordb.NewMemoryBackend(), nil
	}

	conn, err := grpc.NewClient(cfg.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant at %s: %w", cfg.Address, err)
	}
	backend, err := vectordb.NewQdrantBackend(conn)
	if err != nil {
		return nil, err
	}

	exists, err := backend.Exists(ctx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", cfg.Collection, err)
	}
	if !exists {
		distance := model.DistanceCosine
		switch cfg.Distance {
		case "dot":
			distance = model.DistanceDot
		case "euclidean":
			distance = model.DistanceEuclidean
		}
		if err := backend.Create(ctx, cfg.Collection, model.CollectionConfig{
			Dimensions:      cfg.Dimensions,
			Distance:        distance,
			HNSWM:           cfg.HNSWM,
			HNSWEfConstruct: cfg.HNSWEfConstruct,
			Quantisation:    cfg.Quantisation,
		}); err != nil {
			return nil, fmt.Errorf("create collection %s: %w", cfg.Collection, err)
		}
	}

	return backend, nil
}

// buildEmbedderBackends constructs the embedder that DefaultModel names: a
// "text-embedding-" prefix selects OpenAI and an "ollama:" prefix selects
// Ollama. Any other value, including an empty one, degrades to a
// deterministic mock backend so the daemon still starts (useful for
// first-run evaluation without API keys).
func buildEmbedderBackends(cfg config.EmbedderConfig) []embeddings.Backend {
	switch {
	case strings.HasPrefix(cfg.DefaultModel, "text-embedding-"):
		return []embeddings.Backend{embeddings.NewOpenAIBackend(os.Getenv("OPENAI_API_KEY"), cfg.DefaultModel, embeddings.CapabilityText)}
	case strings.HasPrefix(cfg.DefaultModel, "ollama:"):
		name := strings.TrimPrefix(cfg.DefaultModel, "ollama:")
		return []embeddings.Backend{embeddings.NewOllamaBackend(os.Getenv("OLLAMA_BASE_URL"), name, 768, embeddings.CapabilityText, embeddings.CapabilityCode)}
	default:
		logger.Warnf("atlas: embedder.default_model names no OpenAI or Ollama model, falling back to a deterministic mock backend")
		return []embeddings.Backend{embeddings.NewMockBackend(768, embeddings.CapabilityText, embeddings.CapabilityCode)}
	}
}
