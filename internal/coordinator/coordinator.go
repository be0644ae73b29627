// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package coordinator implements the storage coordinator (spec.md §4.L):
// the single facade over the vector, metadata, cache, fulltext, and
// analytics tiers, enforcing the write/read/query synchronisation
// discipline and rolling up tier health. Grounded on the teacher's
// internal/worker/analyst.go processJob (a sequential multi-step pipeline
// that logs-and-continues on a non-critical step's failure rather than
// aborting the whole job) generalised from "one job, one document" to
// "one batch of vector points across G-K".
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nskitch/atlas/internal/analytics"
	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/cache"
	"github.com/nskitch/atlas/internal/filterir"
	"github.com/nskitch/atlas/internal/fulltext"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/metadatastore"
	"github.com/nskitch/atlas/internal/model"
	"github.com/nskitch/atlas/internal/vectordb"
)

// Health is the rolled-up status of spec.md §4.L's health op.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// TierHealth is one tier's probe result.
type TierHealth struct {
	Tier      atlaserr.Tier
	Available bool
	Err       error
}

// HealthReport is the coordinator's health op output.
type HealthReport struct {
	Overall Health
	Tiers   []TierHealth
}

// ChunkTTL is the default cache lifetime for chunk/stats/qntm-key entries
// (spec.md §4.I: "TTL is configurable").
const ChunkTTL = 15 * time.Minute

// Coordinator wires the five storage tiers behind spec.md §4.L's facade.
// Cache, fulltext, and analytics are optional: a nil field degrades rather
// than panics, per the error-handling design's tier classification.
type Coordinator struct {
	Collection string
	Vector     vectordb.Backend
	Metadata   metadatastore.Backend
	Cache      cache.Backend // optional
	Fulltext   fulltext.Backend // optional
	Analytics  analytics.Backend // optional

	cacheTTL time.Duration
}

// New builds a Coordinator. cache/fulltext/analytics may be nil.
func New(collection string, vector vectordb.Backend, meta metadatastore.Backend, c cache.Backend, ft fulltext.Backend, an analytics.Backend) *Coordinator {
	return &Coordinator{
		Collection: collection,
		Vector:     vector,
		Metadata:   meta,
		Cache:      c,
		Fulltext:   ft,
		Analytics:  an,
		cacheTTL:   ChunkTTL,
	}
}

// UpsertVectors implements spec.md §4.L's write protocol over a batch of
// already-embedded points plus their source chunks. points and chunks must
// correspond index-for-index to the same logical set of records.
func (c *Coordinator) UpsertVectors(ctx context.Context, points []model.VectorPoint, chunks []model.Chunk) error {
	sources := deriveSources(chunks)

	// Step 2: vectors to G, fatal on failure.
	if err := c.Vector.Upsert(ctx, c.Collection, points); err != nil {
		return atlaserr.Unavailable(atlaserr.TierVector, fmt.Errorf("upsert_vectors: vector upsert: %w", err))
	}

	// Step 3: sources to H, fatal (H is a required tier, spec.md §7).
	for _, src := range sources {
		if _, err := c.Metadata.UpsertSource(ctx, src); err != nil {
			return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("upsert_vectors: source upsert: %w", err))
		}
	}

	// Step 4: chunks to H, fatal.
	if err := c.Metadata.UpsertChunks(ctx, chunks); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("upsert_vectors: chunk upsert: %w", err))
	}

	// Step 5: invalidate I. Cache is optional; failures here are logged,
	// not fatal, the same way the teacher's processJob logs a failed event
	// write without aborting the job.
	c.invalidateCache(ctx, chunks)

	// Step 6: index in J, non-fatal.
	c.indexFulltext(ctx, chunks)

	// Step 7: analytics rows to K, non-fatal.
	c.recordAnalytics(ctx, chunks)

	logger.Debugf("coordinator: upserted %d points / %d chunks across %d sources", len(points), len(chunks), len(sources))
	return nil
}

func (c *Coordinator) invalidateCache(ctx context.Context, chunks []model.Chunk) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.InvalidateStats(ctx, c.Collection); err != nil {
		logger.Warnf("coordinator: cache stats invalidation failed: %v", err)
	}
	if err := c.Cache.InvalidateQNTMKeys(ctx); err != nil {
		logger.Warnf("coordinator: cache qntm_keys invalidation failed: %v", err)
	}
	for _, ch := range chunks {
		if err := c.Cache.InvalidateChunk(ctx, ch.ID); err != nil {
			logger.Warnf("coordinator: cache chunk invalidation failed for %s: %v", ch.ID, err)
		}
	}
}

func (c *Coordinator) indexFulltext(ctx context.Context, chunks []model.Chunk) {
	if c.Fulltext == nil {
		return
	}
	docs := make([]fulltext.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = fulltext.FromChunk(ch)
	}
	if err := c.Fulltext.Index(ctx, docs); err != nil {
		logger.Warnf("coordinator: fulltext index failed, continuing: %v", err)
	}
}

func (c *Coordinator) recordAnalytics(ctx context.Context, chunks []model.Chunk) {
	if c.Analytics == nil {
		return
	}
	for _, ch := range chunks {
		if err := c.Analytics.RecordChunk(ctx, ch); err != nil {
			logger.Warnf("coordinator: analytics record failed, continuing: %v", err)
		}
	}
}

// MarkDeletionEligible implements the coordinator side of spec.md §4.F
// point 4: a removed file's chunks are flagged, never synchronously
// unindexed from G or J, and dropped from the cache so a stale read
// doesn't keep surfacing them before the metadata flag takes effect.
func (c *Coordinator) MarkDeletionEligible(ctx context.Context, sourceID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if err := c.Metadata.MarkDeletionEligible(ctx, sourceID, chunkIDs); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("mark_deletion_eligible: %w", err))
	}
	if c.Cache != nil {
		for _, id := range chunkIDs {
			if err := c.Cache.InvalidateChunk(ctx, id); err != nil {
				logger.Warnf("coordinator: cache invalidation failed for %s: %v", id, err)
			}
		}
	}
	return nil
}

// GetChunkByID implements spec.md §4.L's read protocol: cache, then
// metadata (populating cache on a metadata hit), then the vector tier's
// stored payload as a last resort.
func (c *Coordinator) GetChunkByID(ctx context.Context, id string) (*model.Chunk, error) {
	if c.Cache != nil {
		if chunk, err := c.Cache.GetChunk(ctx, id); err == nil && chunk != nil {
			return chunk, nil
		}
	}

	chunk, err := c.Metadata.GetChunkByID(ctx, id)
	if err != nil {
		return c.getChunkFromVectorFallback(ctx, id)
	}
	if chunk != nil {
		if c.Cache != nil {
			if err := c.Cache.SetChunk(ctx, *chunk, c.cacheTTL); err != nil {
				logger.Warnf("coordinator: cache populate failed for %s: %v", id, err)
			}
		}
		return chunk, nil
	}

	return c.getChunkFromVectorFallback(ctx, id)
}

func (c *Coordinator) getChunkFromVectorFallback(ctx context.Context, id string) (*model.Chunk, error) {
	points, err := c.Vector.Retrieve(ctx, c.Collection, []string{id})
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierVector, fmt.Errorf("get_chunk_by_id fallback: %w", err))
	}
	if len(points) == 0 {
		return nil, nil
	}
	p := points[0].Payload
	return &model.Chunk{
		ID:                 id,
		Payload:            p,
		ChunkIndex:         p.ChunkIndex,
		TotalChunks:        p.TotalChunks,
		CharCount:          p.CharCount,
		EmbeddingModel:     p.EmbeddingModel,
		EmbeddingStrategy:  p.EmbeddingStrategy,
		ContentType:        p.ContentType,
		ConsolidationLevel: derefOrZero(p.ConsolidationLevel),
	}, nil
}

func derefOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// GetAllQNTMKeys reads through the cache the same way GetChunkByID does.
func (c *Coordinator) GetAllQNTMKeys(ctx context.Context) ([]model.QNTMKey, error) {
	if c.Cache != nil {
		if keys, err := c.Cache.GetQNTMKeys(ctx); err == nil && keys != nil {
			return keys, nil
		}
	}
	keys, err := c.Metadata.GetAllQNTMKeys(ctx)
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		if err := c.Cache.SetQNTMKeys(ctx, keys, c.cacheTTL); err != nil {
			logger.Warnf("coordinator: cache populate qntm_keys failed: %v", err)
		}
	}
	return keys, nil
}

// GetCollectionStats reads through the cache the same way GetChunkByID does.
func (c *Coordinator) GetCollectionStats(ctx context.Context) (model.CollectionStats, error) {
	if c.Cache != nil {
		if stats, err := c.Cache.GetStats(ctx, c.Collection); err == nil && stats != nil {
			return *stats, nil
		}
	}
	stats, err := c.Metadata.GetCollectionStats(ctx, c.Collection)
	if err != nil {
		return model.CollectionStats{}, err
	}
	if c.Cache != nil {
		if err := c.Cache.SetStats(ctx, c.Collection, stats, c.cacheTTL); err != nil {
			logger.Warnf("coordinator: cache populate stats failed: %v", err)
		}
	}
	return stats, nil
}

// SearchSemantic is a pure pass-through to G; filter must already be
// lowered by the caller (search.Engine combines the user filter with
// filterir.SearchInclusionFilter() before this is called).
func (c *Coordinator) SearchSemantic(ctx context.Context, req vectordb.SearchRequest) ([]model.SearchHit, error) {
	hits, err := c.Vector.Search(ctx, c.Collection, req)
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierVector, fmt.Errorf("search_semantic: %w", err))
	}
	return hits, nil
}

// FullTextSearch hits J for ids/scores, then hydrates payloads through
// GetChunkByID; a result missing from H/G is dropped with a logged warning
// rather than surfaced as an error (spec.md §4.L).
func (c *Coordinator) FullTextSearch(ctx context.Context, query string, limit int, filter filterir.Filter) ([]model.SearchHit, error) {
	if c.Fulltext == nil {
		return nil, atlaserr.New(atlaserr.KindBackendUnavailable, "full_text_search: fulltext tier not configured", nil)
	}

	hits, err := c.Fulltext.Search(ctx, query, limit, filterir.ToFulltextString(filter))
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierFulltext, fmt.Errorf("full_text_search: %w", err))
	}

	out := make([]model.SearchHit, 0, len(hits))
	for _, h := range hits {
		chunk, err := c.GetChunkByID(ctx, h.ID)
		if err != nil || chunk == nil {
			logger.Warnf("full_text_search: dropping hit %s, not resolvable in metadata or vector tier", h.ID)
			continue
		}
		out = append(out, model.SearchHit{
			ID:      h.ID,
			Score:   float32(h.Score),
			Payload: chunk.Payload,
			Origin:  model.OriginKeyword,
		})
	}
	return out, nil
}

// Health concurrently probes every configured tier and rolls up the result
// per spec.md §4.L's unhealthy/degraded/healthy rule.
func (c *Coordinator) Health(ctx context.Context) HealthReport {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []TierHealth

	probe := func(tier atlaserr.Tier, check func() error) {
		defer wg.Done()
		err := check()
		mu.Lock()
		results = append(results, TierHealth{Tier: tier, Available: err == nil, Err: err})
		mu.Unlock()
	}

	wg.Add(1)
	go probe(atlaserr.TierVector, func() error {
		_, err := c.Vector.GetInfo(ctx, c.Collection)
		return err
	})
	wg.Add(1)
	go probe(atlaserr.TierMetadata, func() error { return c.Metadata.HealthCheck(ctx) })

	if c.Analytics != nil {
		wg.Add(1)
		go probe(atlaserr.TierAnalytics, func() error { return c.Analytics.HealthCheck(ctx) })
	}
	if c.Cache != nil {
		wg.Add(1)
		go probe(atlaserr.TierCache, func() error {
			_, err := c.Cache.GetStats(ctx, c.Collection)
			return err
		})
	}
	if c.Fulltext != nil {
		wg.Add(1)
		go probe(atlaserr.TierFulltext, func() error {
			_, err := c.Fulltext.DocCount()
			return err
		})
	}

	wg.Wait()

	overall := HealthHealthy
	for _, r := range results {
		if r.Available {
			continue
		}
		if r.Tier == atlaserr.TierVector {
			overall = HealthUnhealthy
			break
		}
		overall = HealthDegraded
	}

	logger.Tracef("coordinator: health=%s", overall)
	return HealthReport{Overall: overall, Tiers: results}
}

// Shutdown releases resources held by optional tiers that need explicit
// closing (fulltext's on-disk index, analytics' sqlite handle).
func (c *Coordinator) Shutdown() error {
	type closer interface{ Close() error }
	var firstErr error
	for _, backend := range []any{c.Fulltext, c.Analytics} {
		if cl, ok := backend.(closer); ok {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// deriveSources groups chunks by file path and computes each group's
// content_hash as hash(concat(original_text ordered by chunk_index)),
// matching spec.md §4.L step 1 and the I2 invariant tested in §8.
func deriveSources(chunks []model.Chunk) []model.Source {
	byPath := make(map[string][]model.Chunk)
	var order []string
	for _, ch := range chunks {
		path := ch.Payload.FilePath
		if _, seen := byPath[path]; !seen {
			order = append(order, path)
		}
		byPath[path] = append(byPath[path], ch)
	}

	out := make([]model.Source, 0, len(order))
	for _, path := range order {
		group := byPath[path]
		out = append(out, model.Source{
			ID:          group[0].SourceID,
			Path:        path,
			ContentHash: contentHashOf(group),
			FileMtime:   mtimeOf(path, group),
			Status:      model.SourceActive,
		})
	}
	return out
}

func contentHashOf(chunks []model.Chunk) string {
	ordered := make([]model.Chunk, len(chunks))
	copy(ordered, chunks)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].ChunkIndex < ordered[i].ChunkIndex {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	h := sha256.New()
	for _, ch := range ordered {
		h.Write([]byte(ch.Payload.OriginalText))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// mtimeOf captures the file's current mtime if still readable, else falls
// back to the chunk payload's created_at (spec.md §4.L step 1).
func mtimeOf(path string, group []model.Chunk) time.Time {
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	if len(group) > 0 {
		return group[0].Payload.CreatedAt
	}
	return time.Now().UTC()
}
