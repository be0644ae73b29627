// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nskitch/atlas/internal/analytics"
	"github.com/nskitch/atlas/internal/filterir"
	"github.com/nskitch/atlas/internal/fulltext"
	"github.com/nskitch/atlas/internal/model"
	"github.com/nskitch/atlas/internal/vectordb"
)

// fakeMetadata is a minimal in-memory metadatastore.Backend stand-in, the
// same shape as vectordb.MemoryBackend but scoped to this test file since
// no other package needs a metadata fake yet.
type fakeMetadata struct {
	mu      sync.Mutex
	sources map[string]model.Source
	chunks  map[string]model.Chunk
	keys    map[string]model.QNTMKey
	fail    bool
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{
		sources: make(map[string]model.Source),
		chunks:  make(map[string]model.Chunk),
		keys:    make(map[string]model.QNTMKey),
	}
}

func (f *fakeMetadata) GetSourceByPath(ctx context.Context, path string) (*model.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sources {
		if s.Path == path {
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeMetadata) GetChunkIDsForSource(ctx context.Context, sourceID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, c := range f.chunks {
		if c.SourceID == sourceID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeMetadata) UpsertSource(ctx context.Context, src model.Source) (model.Source, error) {
	if f.fail {
		return model.Source{}, errors.New("fake metadata failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[src.ID] = src
	return src, nil
}

func (f *fakeMetadata) UpsertChunks(ctx context.Context, chunks []model.Chunk) error {
	if f.fail {
		return errors.New("fake metadata failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeMetadata) MarkDeletionEligible(ctx context.Context, sourceID string, chunkIDs []string) error {
	if f.fail {
		return errors.New("fake metadata failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range chunkIDs {
		if c, ok := f.chunks[id]; ok {
			c.DeletionEligible = true
			f.chunks[id] = c
		}
	}
	return nil
}

func (f *fakeMetadata) GetChunkByID(ctx context.Context, id string) (*model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chunks[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeMetadata) GetAllQNTMKeys(ctx context.Context) ([]model.QNTMKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.QNTMKey, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeMetadata) RecordQNTMKeys(ctx context.Context, chunkID string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		f.keys[k] = model.QNTMKey{Key: k, LastUsedInChunk: chunkID}
	}
	return nil
}

func (f *fakeMetadata) GetCollectionStats(ctx context.Context, collection string) (model.CollectionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.CollectionStats{CollectionName: collection, TotalChunks: int64(len(f.chunks))}, nil
}

func (f *fakeMetadata) HealthCheck(ctx context.Context) error {
	if f.fail {
		return errors.New("fake metadata down")
	}
	return nil
}

// fakeCache is an in-memory cache.Backend stand-in recording invalidations
// so tests can assert the write protocol's step 5 actually ran.
type fakeCache struct {
	mu                sync.Mutex
	chunks            map[string]model.Chunk
	qntmKeys          []model.QNTMKey
	stats             map[string]model.CollectionStats
	invalidatedChunks []string
	statsInvalidated  bool
	qntmInvalidated   bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{chunks: make(map[string]model.Chunk), stats: make(map[string]model.CollectionStats)}
}

func (c *fakeCache) GetChunk(ctx context.Context, id string) (*model.Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chunks[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (c *fakeCache) SetChunk(ctx context.Context, chunk model.Chunk, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks[chunk.ID] = chunk
	return nil
}

func (c *fakeCache) InvalidateChunk(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chunks, id)
	c.invalidatedChunks = append(c.invalidatedChunks, id)
	return nil
}

func (c *fakeCache) GetQNTMKeys(ctx context.Context) ([]model.QNTMKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qntmKeys, nil
}

func (c *fakeCache) SetQNTMKeys(ctx context.Context, keys []model.QNTMKey, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qntmKeys = keys
	return nil
}

func (c *fakeCache) InvalidateQNTMKeys(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qntmKeys = nil
	c.qntmInvalidated = true
	return nil
}

func (c *fakeCache) GetStats(ctx context.Context, collection string) (*model.CollectionStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[collection]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *fakeCache) SetStats(ctx context.Context, collection string, stats model.CollectionStats, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[collection] = stats
	return nil
}

func (c *fakeCache) InvalidateStats(ctx context.Context, collection string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, collection)
	c.statsInvalidated = true
	return nil
}

// fakeFulltext is an in-memory fulltext.Backend stand-in matching on exact
// id-keyed documents, no real tokenisation needed to exercise the
// coordinator's hit-then-hydrate protocol.
type fakeFulltext struct {
	mu   sync.Mutex
	docs map[string]fulltext.Document
}

func newFakeFulltext() *fakeFulltext { return &fakeFulltext{docs: make(map[string]fulltext.Document)} }

func (f *fakeFulltext) Index(ctx context.Context, docs []fulltext.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeFulltext) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeFulltext) Search(ctx context.Context, query string, limit int, filter string) ([]fulltext.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []fulltext.Hit
	for _, d := range f.docs {
		hits = append(hits, fulltext.Hit{ID: d.ID, OriginalText: d.OriginalText, FilePath: d.FilePath, Score: 1})
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (f *fakeFulltext) DocCount() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.docs)), nil
}

// fakeAnalytics is an in-memory analytics.Backend stand-in that just counts
// recorded rows, enough to assert step 7 ran without a sqlite file.
type fakeAnalytics struct {
	mu   sync.Mutex
	rows int
	fail bool
}

func (a *fakeAnalytics) RecordChunk(ctx context.Context, chunk model.Chunk) error {
	if a.fail {
		return errors.New("fake analytics down")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows++
	return nil
}

func (a *fakeAnalytics) QueryTimeline(ctx context.Context, q analytics.TimelineQuery) ([]analytics.TimelinePoint, error) {
	return nil, nil
}

func (a *fakeAnalytics) Export(ctx context.Context, req analytics.ExportRequest) (analytics.ExportResult, error) {
	return analytics.ExportResult{}, nil
}

func (a *fakeAnalytics) HealthCheck(ctx context.Context) error {
	if a.fail {
		return errors.New("fake analytics down")
	}
	return nil
}

func testChunk(id, path string, idx int) model.Chunk {
	return model.Chunk{
		ID:         id,
		SourceID:   "src-" + path,
		ChunkIndex: idx,
		Payload: model.ChunkPayload{
			OriginalText: "content of " + id,
			FilePath:     path,
			FileName:     path,
			ChunkIndex:   idx,
			CreatedAt:    time.Now().UTC(),
		},
	}
}

func testPoint(id string) model.VectorPoint {
	return model.VectorPoint{
		ID:      id,
		Vectors: model.NamedVectors{model.VectorText: {1, 0, 0}},
		Payload: model.ChunkPayload{OriginalText: "content of " + id},
	}
}

func TestCoordinator_UpsertVectorsWritesAllTiersAndInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	vec := vectordb.NewMemoryBackend()
	if err := vec.Create(ctx, "atlas", model.CollectionConfig{Dimensions: 3}); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	meta := newFakeMetadata()
	c := newFakeCache()
	ft := newFakeFulltext()
	an := &fakeAnalytics{}

	coord := New("atlas", vec, meta, c, ft, an)

	chunks := []model.Chunk{testChunk("c1", "/docs/a.md", 0)}
	points := []model.VectorPoint{testPoint("c1")}

	if err := coord.UpsertVectors(ctx, points, chunks); err != nil {
		t.Fatalf("UpsertVectors: %v", err)
	}

	if _, ok := meta.chunks["c1"]; !ok {
		t.Error("expected chunk upserted into metadata")
	}
	if _, ok := meta.sources["src-/docs/a.md"]; !ok {
		t.Error("expected source upserted into metadata")
	}
	if !c.statsInvalidated || !c.qntmInvalidated {
		t.Error("expected stats and qntm_keys caches invalidated")
	}
	if ft.docs["c1"].OriginalText == "" {
		t.Error("expected chunk indexed into fulltext")
	}
	if an.rows != 1 {
		t.Errorf("expected 1 analytics row, got %d", an.rows)
	}
}

func TestCoordinator_UpsertVectorsFatalOnVectorFailure(t *testing.T) {
	ctx := context.Background()
	coord := New("atlas", failingVector{}, newFakeMetadata(), nil, nil, nil)

	err := coord.UpsertVectors(ctx, []model.VectorPoint{testPoint("c1")}, []model.Chunk{testChunk("c1", "/a.md", 0)})
	if err == nil {
		t.Fatal("expected vector tier failure to abort the write")
	}
}

type failingVector struct{ vectordb.Backend }

func (failingVector) Upsert(ctx context.Context, collection string, points []model.VectorPoint) error {
	return errors.New("vector tier down")
}

func TestCoordinator_UpsertVectorsToleratesOptionalTierFailures(t *testing.T) {
	ctx := context.Background()
	vec := vectordb.NewMemoryBackend()
	_ = vec.Create(ctx, "atlas", model.CollectionConfig{Dimensions: 3})
	meta := newFakeMetadata()
	an := &fakeAnalytics{fail: true}

	coord := New("atlas", vec, meta, nil, nil, an)

	err := coord.UpsertVectors(ctx, []model.VectorPoint{testPoint("c1")}, []model.Chunk{testChunk("c1", "/a.md", 0)})
	if err != nil {
		t.Fatalf("expected analytics failure to be non-fatal, got %v", err)
	}
}

func TestCoordinator_GetChunkByIDFallsThroughCacheMetadataVector(t *testing.T) {
	ctx := context.Background()
	vec := vectordb.NewMemoryBackend()
	_ = vec.Create(ctx, "atlas", model.CollectionConfig{Dimensions: 3})
	_ = vec.Upsert(ctx, "atlas", []model.VectorPoint{{ID: "only-in-vector", Vectors: model.NamedVectors{model.VectorText: {1, 0, 0}}, Payload: model.ChunkPayload{OriginalText: "vector fallback"}}})

	meta := newFakeMetadata()
	meta.chunks["in-metadata"] = model.Chunk{ID: "in-metadata", Payload: model.ChunkPayload{OriginalText: "from metadata"}}
	c := newFakeCache()
	c.chunks["in-cache"] = model.Chunk{ID: "in-cache", Payload: model.ChunkPayload{OriginalText: "from cache"}}

	coord := New("atlas", vec, meta, c, nil, nil)

	got, err := coord.GetChunkByID(ctx, "in-cache")
	if err != nil || got == nil || got.Payload.OriginalText != "from cache" {
		t.Fatalf("expected cache hit, got %+v err=%v", got, err)
	}

	got, err = coord.GetChunkByID(ctx, "in-metadata")
	if err != nil || got == nil || got.Payload.OriginalText != "from metadata" {
		t.Fatalf("expected metadata hit, got %+v err=%v", got, err)
	}
	if _, ok := c.chunks["in-metadata"]; !ok {
		t.Error("expected metadata hit to populate the cache")
	}

	got, err = coord.GetChunkByID(ctx, "only-in-vector")
	if err != nil || got == nil || got.Payload.OriginalText != "vector fallback" {
		t.Fatalf("expected vector fallback hit, got %+v err=%v", got, err)
	}

	got, err = coord.GetChunkByID(ctx, "nowhere")
	if err != nil || got != nil {
		t.Fatalf("expected nil for an id in no tier, got %+v err=%v", got, err)
	}
}

func TestCoordinator_FullTextSearchDropsUnresolvableHits(t *testing.T) {
	ctx := context.Background()
	vec := vectordb.NewMemoryBackend()
	_ = vec.Create(ctx, "atlas", model.CollectionConfig{Dimensions: 3})
	meta := newFakeMetadata()
	meta.chunks["resolvable"] = model.Chunk{ID: "resolvable", Payload: model.ChunkPayload{OriginalText: "hello world"}}

	ft := newFakeFulltext()
	ft.docs["resolvable"] = fulltext.Document{ID: "resolvable", OriginalText: "hello world"}
	ft.docs["dangling"] = fulltext.Document{ID: "dangling", OriginalText: "orphaned hit"}

	coord := New("atlas", vec, meta, nil, ft, nil)

	hits, err := coord.FullTextSearch(ctx, "hello", 10, filterir.Filter{})
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "resolvable" {
		t.Fatalf("expected only the resolvable hit to survive, got %+v", hits)
	}
}

func TestCoordinator_HealthUnhealthyWhenVectorDown(t *testing.T) {
	ctx := context.Background()
	coord := New("atlas", failingGetInfo{}, newFakeMetadata(), nil, nil, nil)
	report := coord.Health(ctx)
	if report.Overall != HealthUnhealthy {
		t.Fatalf("expected unhealthy when vector tier is down, got %s", report.Overall)
	}
}

type failingGetInfo struct{ vectordb.Backend }

func (failingGetInfo) GetInfo(ctx context.Context, collection string) (model.CollectionInfo, error) {
	return model.CollectionInfo{}, errors.New("vector tier down")
}

func TestCoordinator_HealthDegradedWhenMetadataDown(t *testing.T) {
	ctx := context.Background()
	vec := vectordb.NewMemoryBackend()
	_ = vec.Create(ctx, "atlas", model.CollectionConfig{Dimensions: 3})
	meta := newFakeMetadata()
	meta.fail = true

	coord := New("atlas", vec, meta, nil, nil, nil)
	report := coord.Health(ctx)
	if report.Overall != HealthDegraded {
		t.Fatalf("expected degraded when metadata tier is down, got %s", report.Overall)
	}
}

func TestCoordinator_HealthHealthyWhenEverythingUp(t *testing.T) {
	ctx := context.Background()
	vec := vectordb.NewMemoryBackend()
	_ = vec.Create(ctx, "atlas", model.CollectionConfig{Dimensions: 3})

	coord := New("atlas", vec, newFakeMetadata(), nil, nil, &fakeAnalytics{})
	report := coord.Health(ctx)
	if report.Overall != HealthHealthy {
		t.Fatalf("expected healthy, got %s", report.Overall)
	}
}
