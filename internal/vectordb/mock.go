// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"sort"
	"sync"

	"github.com/nskitch/atlas/internal/filterir"
	"github.com/nskitch/atlas/internal/model"
)

// MemoryBackend is an in-process Backend used by tests and UI-only mode,
// grounded on the teacher's MockVectorDB (a no-op stub) but generalised
// into an actual in-memory store: Atlas's test suite needs search/scroll
// round-trips to assert real behaviour, not just "doesn't panic".
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	cfg    model.CollectionConfig
	points map[string]model.VectorPoint
	order  []string // insertion order, for stable scroll pagination
}

// NewMemoryBackend builds an empty in-memory Backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryBackend) Exists(ctx context.Context, collection string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[collection]
	return ok, nil
}

func (m *MemoryBackend) Create(ctx context.Context, collection string, cfg model.CollectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = &memoryCollection{cfg: cfg, points: make(map[string]model.VectorPoint)}
	return nil
}

func (m *MemoryBackend) DeleteCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

func (m *MemoryBackend) GetInfo(ctx context.Context, collection string) (model.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return model.CollectionInfo{}, nil
	}
	return model.CollectionInfo{PointsCount: int64(len(c.points)), Dimensions: c.cfg.Dimensions}, nil
}

func (m *MemoryBackend) Upsert(ctx context.Context, collection string, points []model.VectorPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collections[collection]
	if c == nil {
		c = &memoryCollection{points: make(map[string]model.VectorPoint)}
		m.collections[collection] = c
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryBackend) Search(ctx context.Context, collection string, req SearchRequest) ([]model.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.collections[collection]
	if c == nil {
		return nil, nil
	}

	hits := make([]model.SearchHit, 0, len(c.points))
	for _, p := range c.points {
		vec, ok := p.Vectors[req.VectorName]
		if !ok {
			continue
		}
		if !matchesMemoryFilter(p, req.Filter) {
			continue
		}
		hits = append(hits, model.SearchHit{
			ID:      p.ID,
			Score:   cosineSimilarity(req.Vector, vec),
			Payload: p.Payload,
			Origin:  model.OriginSemantic,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func (m *MemoryBackend) Retrieve(ctx context.Context, collection string, ids []string) ([]model.VectorPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.collections[collection]
	if c == nil {
		return nil, nil
	}
	var out []model.VectorPoint
	for _, id := range ids {
		if p, ok := c.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collections[collection]
	if c == nil {
		return nil
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (m *MemoryBackend) Scroll(ctx context.Context, collection string, req ScrollRequest) (ScrollResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.collections[collection]
	if c == nil {
		return ScrollResult{}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}

	start := 0
	if req.Offset != "" {
		for i, id := range c.order {
			if id == req.Offset {
				start = i
				break
			}
		}
	}

	var out []model.VectorPoint
	i := start
	for ; i < len(c.order) && len(out) < limit; i++ {
		p := c.points[c.order[i]]
		if matchesMemoryFilter(p, req.Filter) {
			out = append(out, p)
		}
	}

	next := ""
	if i < len(c.order) {
		next = c.order[i]
	}
	return ScrollResult{Points: out, NextOffset: next}, nil
}

func (m *MemoryBackend) SetPayload(ctx context.Context, collection string, ids []string, partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collections[collection]
	if c == nil {
		return nil
	}
	for _, id := range ids {
		p, ok := c.points[id]
		if !ok {
			continue
		}
		applyPartialPayload(&p.Payload, partial)
		c.points[id] = p
	}
	return nil
}

func (m *MemoryBackend) CreatePayloadIndex(ctx context.Context, collection, field string, schema model.PayloadSchema) error {
	return nil
}

func (m *MemoryBackend) DisableHNSW(ctx context.Context, collection string) error { return nil }

func (m *MemoryBackend) EnableHNSW(ctx context.Context, collection string, mVal, efConstruct int) error {
	return nil
}

// applyPartialPayload merges a subset of fields into payload, matching
// set_payload's merge-not-replace semantics (spec.md §4.G).
func applyPartialPayload(payload *model.ChunkPayload, partial map[string]any) {
	if v, ok := partial["consolidation_level"].(int); ok {
		payload.ConsolidationLevel = &v
	}
	if v, ok := partial["importance"].(int); ok {
		payload.Importance = &v
	}
}

// matchesMemoryFilter evaluates a filterir.Filter against a point's payload
// directly, rather than lowering through ToVectorFilter, so tests can assert
// on filter semantics (is_null vs is_absent vs is_empty) without a live
// Qdrant instance.
func matchesMemoryFilter(p model.VectorPoint, f *filterir.Filter) bool {
	if f == nil || f.IsEmptyFilter() {
		return true
	}
	fields := payloadFields(p.Payload)

	for _, c := range f.Must {
		if !conditionMatches(fields, c) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if conditionMatches(fields, c) {
			return false
		}
	}
	if len(f.Should) > 0 {
		any := false
		for _, c := range f.Should {
			if conditionMatches(fields, c) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func payloadFields(p model.ChunkPayload) map[string]any {
	fields := map[string]any{
		"file_path":    p.FilePath,
		"file_name":    p.FileName,
		"file_type":    p.FileType,
		"chunk_index":  p.ChunkIndex,
		"total_chunks": p.TotalChunks,
		"content_type": string(p.ContentType),
	}
	if p.ConsolidationLevel != nil {
		fields["consolidation_level"] = *p.ConsolidationLevel
	}
	if p.Importance != nil {
		fields["importance"] = *p.Importance
	}
	return fields
}

func conditionMatches(fields map[string]any, c filterir.Condition) bool {
	v, present := fields[c.Key]
	switch c.Kind {
	case filterir.KindIsNull:
		return present && v == nil
	case filterir.KindIsAbsent:
		return !present
	case filterir.KindIsEmpty:
		if !present || v == nil {
			return true
		}
		s, ok := v.(string)
		return ok && s == ""
	case filterir.KindMatchValue:
		return present && v == c.Value
	case filterir.KindMatchAny:
		if !present {
			return false
		}
		for _, want := range c.Values {
			if v == want {
				return true
			}
		}
		return false
	case filterir.KindMatchExcept:
		if !present {
			return true
		}
		for _, excl := range c.Values {
			if v == excl {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (sqrt(na) * sqrt(nb)))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

var _ Backend = (*MemoryBackend)(nil)
