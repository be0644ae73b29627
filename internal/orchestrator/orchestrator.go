// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package orchestrator implements the ingestion pipeline of spec.md §4.O:
// a recursive directory watcher feeds a per-path debouncer, each settled
// path runs through extraction, content-addressing, chunking, and
// concurrent embedding, and the resulting points are flushed to the
// storage coordinator in size- or time-bounded batches. Grounded on the
// teacher's internal/drone/watcher/manager.go (fsnotify recursive watch +
// debounce + per-file processing goroutine), with every Hive-specific
// dependency (ClientDB, DroneClient/gRPC, parser.Chunker) replaced by
// Atlas's own extract/sourcetrack/chunker/embeddings/coordinator stack,
// and the single-file synchronous send replaced by a buffered batch
// flushed through internal/pipeline's adaptive concurrency stage.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/chunker"
	"github.com/nskitch/atlas/internal/embeddings"
	"github.com/nskitch/atlas/internal/extract"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
	"github.com/nskitch/atlas/internal/pipeline"
	"github.com/nskitch/atlas/internal/pressure"
	"github.com/nskitch/atlas/internal/sourcetrack"
)

// Coordinator is the narrow slice of *coordinator.Coordinator the
// orchestrator depends on, kept local to avoid an import cycle the way
// search.coordinatorAPI does.
type Coordinator interface {
	UpsertVectors(ctx context.Context, points []model.VectorPoint, chunks []model.Chunk) error
	MarkDeletionEligible(ctx context.Context, sourceID string, chunkIDs []string) error
}

// Options configures one orchestrator run (spec.md §4.O, §6).
type Options struct {
	WatchPaths []string

	DebounceInterval   time.Duration
	BatchSize          int
	BatchFlushInterval time.Duration

	Concurrency Concurrency

	Chunker  *chunker.Chunker
	Embedder *embeddings.Router
	Lookup   sourcetrack.SourceLookup
	Store    Coordinator
}

// Concurrency configures the adaptive embedding stage (spec.md §4.C).
type Concurrency struct {
	Initial   int
	Min       int
	Max       int
	MonitorMs int
	Prober    *pressure.Prober
}

func (c Concurrency) orDefault() Concurrency {
	if c.Max <= 0 {
		c.Initial, c.Min, c.Max = 2, 1, 8
	}
	if c.Prober == nil {
		c.Prober = pressure.New()
	}
	return c
}

// Orchestrator owns the watcher goroutines, debouncer, and batch buffer
// for one run.
type Orchestrator struct {
	opts      Options
	debouncer *debouncer

	watchers map[string]*fsnotify.Watcher
	watchMu  sync.Mutex

	batchMu    sync.Mutex
	batchPts   []model.VectorPoint
	batchChks  []model.Chunk

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Orchestrator. Call Start to begin watching.
func New(opts Options) *Orchestrator {
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = 500 * time.Millisecond
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.BatchFlushInterval <= 0 {
		opts.BatchFlushInterval = 5 * time.Second
	}
	if opts.Chunker == nil {
		opts.Chunker = chunker.New(chunker.DefaultOptions())
	}
	opts.Concurrency = opts.Concurrency.orDefault()

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:     opts,
		watchers: make(map[string]*fsnotify.Watcher),
		ctx:      ctx,
		cancel:   cancel,
	}
	o.debouncer = newDebouncer(opts.DebounceInterval, o.onPathSettled)
	return o
}

// Start begins recursive watching of every configured path, scans each
// path's existing files once through the debouncer, and launches the
// periodic batch-flush timer (spec.md §4.O point 4).
func (o *Orchestrator) Start() error {
	for _, path := range o.opts.WatchPaths {
		if err := o.addWatchPath(path); err != nil {
			logger.Warnf("orchestrator: failed to watch %s: %v", path, err)
			continue
		}
	}

	o.wg.Add(1)
	go o.flushLoop()

	return nil
}

// Stop halts watching, cancels pending debounce timers, and flushes
// whatever remains buffered before returning.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.debouncer.stop()

	o.watchMu.Lock()
	for path, w := range o.watchers {
		if err := w.Close(); err != nil {
			logger.Warnf("orchestrator: error closing watcher for %s: %v", path, err)
		}
		delete(o.watchers, path)
	}
	o.watchMu.Unlock()

	o.wg.Wait()
	o.flush(context.Background())
}

func (o *Orchestrator) addWatchPath(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	o.watchMu.Lock()
	if _, exists := o.watchers[abs]; exists {
		o.watchMu.Unlock()
		return nil
	}
	o.watchMu.Unlock()

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return fmt.Errorf("create watch dir: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := watcher.Add(path); err != nil {
				logger.Warnf("orchestrator: failed to watch %s: %v", path, err)
			}
		}
		return nil
	}); err != nil {
		watcher.Close()
		return fmt.Errorf("walk directory: %w", err)
	}

	o.watchMu.Lock()
	o.watchers[abs] = watcher
	o.watchMu.Unlock()

	o.wg.Add(1)
	go o.processEvents(abs, watcher)

	go o.scanExisting(abs)

	return nil
}

func (o *Orchestrator) scanExisting(root string) {
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if extract.IsTemporaryFile(path) || !extract.IsSupportedFile(path) {
			return nil
		}
		o.debouncer.trigger(path)
		return nil
	})
	if err != nil {
		logger.Warnf("orchestrator: scanning %s: %v", root, err)
	}
}

func (o *Orchestrator) processEvents(path string, watcher *fsnotify.Watcher) {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warnf("orchestrator: failed to watch new directory %s: %v", event.Name, err)
					}
					continue
				}
			}
			if event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename {
				go o.handleDelete(event.Name)
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if extract.IsTemporaryFile(event.Name) || !extract.IsSupportedFile(event.Name) {
					continue
				}
				o.debouncer.trigger(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("orchestrator: watcher error for %s: %v", path, err)
		}
	}
}

// onPathSettled runs after the debounce quiet window elapses for path
// (spec.md §4.O point 2-3): extract, content-address, chunk, embed, and
// buffer the resulting points for the next flush.
func (o *Orchestrator) onPathSettled(path string) {
	if _, err := os.Stat(path); err != nil {
		// File vanished between the event firing and the debounce window
		// elapsing; fsnotify's own Remove event (if any) handles deletion.
		return
	}

	text, err := extract.File(path)
	if err != nil {
		logger.Warnf("orchestrator: extract %s: %v", path, err)
		return
	}
	if text == "" {
		logger.Debugf("orchestrator: %s produced no text, skipping", path)
		return
	}

	contentType := extract.ContentTypeFor(path)
	rawChunks := o.opts.Chunker.Split(text, contentType, path)
	if len(rawChunks) == 0 {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Warnf("orchestrator: stat %s: %v", path, err)
		return
	}

	decision, err := sourcetrack.Decide(o.ctx, o.opts.Lookup, path, info.ModTime(), rawChunks)
	if err != nil {
		logger.Warnf("orchestrator: decide %s: %v", path, err)
		return
	}

	switch decision.Kind {
	case sourcetrack.KindNoOp:
		logger.Debugf("orchestrator: %s unchanged, skipping", path)
		return
	case sourcetrack.KindNew, sourcetrack.KindReingest:
		o.embedAndBuffer(path, contentType, decision)
	}
}

// embedAndBuffer embeds every chunk the decision says must be (re)written,
// fanning the embed calls out through the adaptive pipeline stage (spec.md
// §4.C, §4.O point 3), then appends the resulting points to the batch
// buffer.
func (o *Orchestrator) embedAndBuffer(path string, contentType model.ContentType, decision *sourcetrack.Decision) {
	if len(decision.Upsert) == 0 {
		return
	}

	src := make(chan sourcetrack.IdentifiedChunk, len(decision.Upsert))
	for _, c := range decision.Upsert {
		src <- c
	}
	close(src)

	fileName := filepath.Base(path)
	fileType := filepath.Ext(path)
	now := time.Now().UTC()

	type embedded struct {
		point model.VectorPoint
		chunk model.Chunk
	}

	results := pipeline.Run(o.ctx, src, func(ctx context.Context, ic sourcetrack.IdentifiedChunk) (embedded, error) {
		res, warn, err := o.opts.Embedder.Embed(ctx, []string{ic.Text}, contentType)
		if err != nil {
			return embedded{}, atlaserr.New(atlaserr.KindEmbedderFailure, fmt.Sprintf("embed chunk %s", ic.ID), err)
		}
		if warn != nil {
			logger.Warnf("orchestrator: %s: %s", path, warn.Reason)
		}

		payload := model.ChunkPayload{
			OriginalText:      ic.Text,
			FilePath:          decision.Path,
			FileName:          fileName,
			FileType:          fileType,
			ChunkIndex:        ic.ChunkIndex,
			TotalChunks:       ic.TotalChunks,
			CharCount:         ic.CharCount,
			QNTMKeys:          ic.QNTMKeys,
			CreatedAt:         now,
			EmbeddingModel:    res.Model,
			EmbeddingStrategy: res.Strategy,
			ContentType:       contentType,
			VectorsPresent:    []model.VectorName{vectorNameFor(contentType)},
		}

		chunk := model.Chunk{
			ID:                ic.ID,
			SourceID:          decision.SourceID,
			ChunkIndex:        ic.ChunkIndex,
			TotalChunks:       ic.TotalChunks,
			CharCount:         ic.CharCount,
			Payload:           payload,
			EmbeddingModel:    res.Model,
			EmbeddingStrategy: res.Strategy,
			ContentType:       contentType,
			CreatedAt:         now,
		}

		point := model.VectorPoint{
			ID:      ic.ID,
			Vectors: model.NamedVectors{vectorNameFor(contentType): res.Embeddings[0]},
			Payload: payload,
		}

		return embedded{point: point, chunk: chunk}, nil
	}, pipeline.Options{
		Initial:   o.opts.Concurrency.Initial,
		Min:       o.opts.Concurrency.Min,
		Max:       o.opts.Concurrency.Max,
		MonitorMs: o.opts.Concurrency.MonitorMs,
		Prober:    o.opts.Concurrency.Prober,
	})

	var points []model.VectorPoint
	var chunks []model.Chunk
	for r := range results {
		if r.Err != nil {
			logger.Warnf("orchestrator: %s: %v", path, r.Err)
			continue
		}
		points = append(points, r.Value.point)
		chunks = append(chunks, r.Value.chunk)
	}

	if len(points) == 0 {
		return
	}

	o.batchMu.Lock()
	o.batchPts = append(o.batchPts, points...)
	o.batchChks = append(o.batchChks, chunks...)
	shouldFlush := len(o.batchPts) >= o.opts.BatchSize
	o.batchMu.Unlock()

	if shouldFlush {
		o.flush(o.ctx)
	}
}

func vectorNameFor(ct model.ContentType) model.VectorName {
	switch ct {
	case model.ContentCode:
		return model.VectorCode
	case model.ContentMedia:
		return model.VectorMedia
	default:
		return model.VectorText
	}
}

// handleDelete implements spec.md §4.O's handling of a removal event: the
// stale chunk set is flagged deletion_eligible straight away rather than
// waiting for the next size/time batch flush, since a delete carries no new
// vectors to accumulate alongside (spec.md §4.F point 4).
func (o *Orchestrator) handleDelete(path string) {
	decision, err := sourcetrack.DecideDelete(o.ctx, o.opts.Lookup, path)
	if err != nil {
		logger.Warnf("orchestrator: decide delete %s: %v", path, err)
		return
	}
	if len(decision.StaleChunkIDs) == 0 {
		return
	}
	if err := o.opts.Store.MarkDeletionEligible(o.ctx, decision.SourceID, decision.StaleChunkIDs); err != nil {
		logger.Warnf("orchestrator: mark deletion eligible for %s: %v", path, err)
		return
	}
	logger.Debugf("orchestrator: %s deleted, %d chunks marked deletion_eligible", path, len(decision.StaleChunkIDs))
}

// flushLoop flushes the batch buffer on BatchFlushInterval as a ceiling on
// how long produced-but-unflushed points can sit idle (spec.md §4.O point
// 4: "size- or time-bounded").
func (o *Orchestrator) flushLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opts.BatchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.flush(o.ctx)
		}
	}
}

func (o *Orchestrator) flush(ctx context.Context) {
	o.batchMu.Lock()
	points := o.batchPts
	chunks := o.batchChks
	o.batchPts = nil
	o.batchChks = nil
	o.batchMu.Unlock()

	if len(points) == 0 {
		return
	}

	if err := o.opts.Store.UpsertVectors(ctx, points, chunks); err != nil {
		logger.Warnf("orchestrator: flush of %d points failed: %v", len(points), err)
		return
	}
	logger.Debugf("orchestrator: flushed %d points / %d chunks", len(points), len(chunks))
}
