// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"testing"

	"github.com/nskitch/atlas/internal/filterir"
	"github.com/nskitch/atlas/internal/model"
)

func TestMemoryBackend_CreateAndExists(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	ok, err := b.Exists(ctx, "chunks")
	if err != nil || ok {
		t.Fatalf("expected collection to not exist yet, got ok=%v err=%v", ok, err)
	}

	if err := b.Create(ctx, "chunks", model.CollectionConfig{Dimensions: 3, Distance: model.DistanceCosine}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err = b.Exists(ctx, "chunks")
	if err != nil || !ok {
		t.Fatalf("expected collection to exist, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryBackend_UpsertAndSearchRanksByCosine(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Create(ctx, "chunks", model.CollectionConfig{Dimensions: 3, Distance: model.DistanceCosine})

	points := []model.VectorPoint{
		{ID: "a", Vectors: model.NamedVectors{model.VectorText: {1, 0, 0}}, Payload: model.ChunkPayload{FilePath: "a.txt"}},
		{ID: "b", Vectors: model.NamedVectors{model.VectorText: {0, 1, 0}}, Payload: model.ChunkPayload{FilePath: "b.txt"}},
		{ID: "c", Vectors: model.NamedVectors{model.VectorText: {0.9, 0.1, 0}}, Payload: model.ChunkPayload{FilePath: "c.txt"}},
	}
	if err := b.Upsert(ctx, "chunks", points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := b.Search(ctx, "chunks", SearchRequest{
		VectorName: model.VectorText,
		Vector:     []float32{1, 0, 0},
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits (limit applied), got %d", len(hits))
	}
	if hits[0].ID != "a" || hits[1].ID != "c" {
		t.Errorf("expected a then c by descending cosine similarity, got %s then %s", hits[0].ID, hits[1].ID)
	}
	if hits[0].Origin != model.OriginSemantic {
		t.Errorf("expected semantic origin tag, got %s", hits[0].Origin)
	}
}

func TestMemoryBackend_SearchAppliesMustNotFilter(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Create(ctx, "chunks", model.CollectionConfig{Dimensions: 2, Distance: model.DistanceCosine})

	deletionEligible := 1
	_ = deletionEligible
	points := []model.VectorPoint{
		{ID: "keep", Vectors: model.NamedVectors{model.VectorText: {1, 0}}, Payload: model.ChunkPayload{FilePath: "keep.txt"}},
		{ID: "drop", Vectors: model.NamedVectors{model.VectorText: {1, 0}}, Payload: model.ChunkPayload{FilePath: "drop.txt", Importance: intPtr(5)}},
	}
	_ = b.Upsert(ctx, "chunks", points)

	f := filterir.Filter{MustNot: []filterir.Condition{filterir.MatchValue("importance", 5)}}
	hits, err := b.Search(ctx, "chunks", SearchRequest{VectorName: model.VectorText, Vector: []float32{1, 0}, Limit: 10, Filter: &f})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "keep" {
		t.Fatalf("expected only 'keep' to survive the must_not filter, got %+v", hits)
	}
}

func TestMemoryBackend_SetPayloadMergesWithoutReplacing(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Create(ctx, "chunks", model.CollectionConfig{Dimensions: 2, Distance: model.DistanceCosine})
	_ = b.Upsert(ctx, "chunks", []model.VectorPoint{
		{ID: "x", Vectors: model.NamedVectors{model.VectorText: {1, 0}}, Payload: model.ChunkPayload{FilePath: "x.txt"}},
	})

	if err := b.SetPayload(ctx, "chunks", []string{"x"}, map[string]any{"consolidation_level": 2}); err != nil {
		t.Fatalf("SetPayload: %v", err)
	}

	points, err := b.Retrieve(ctx, "chunks", []string{"x"})
	if err != nil || len(points) != 1 {
		t.Fatalf("Retrieve: %v %+v", err, points)
	}
	p := points[0].Payload
	if p.FilePath != "x.txt" {
		t.Errorf("expected set_payload to preserve file_path, got %q", p.FilePath)
	}
	if p.ConsolidationLevel == nil || *p.ConsolidationLevel != 2 {
		t.Errorf("expected consolidation_level=2 to be merged in, got %+v", p.ConsolidationLevel)
	}
}

func TestMemoryBackend_DeleteRemovesPoint(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Create(ctx, "chunks", model.CollectionConfig{Dimensions: 2, Distance: model.DistanceCosine})
	_ = b.Upsert(ctx, "chunks", []model.VectorPoint{
		{ID: "gone", Vectors: model.NamedVectors{model.VectorText: {1, 0}}},
	})

	if err := b.Delete(ctx, "chunks", []string{"gone"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	points, err := b.Retrieve(ctx, "chunks", []string{"gone"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("expected deleted point to be gone, got %+v", points)
	}
}

func TestMemoryBackend_ScrollPaginatesInInsertionOrder(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Create(ctx, "chunks", model.CollectionConfig{Dimensions: 1, Distance: model.DistanceCosine})
	_ = b.Upsert(ctx, "chunks", []model.VectorPoint{
		{ID: "p1"}, {ID: "p2"}, {ID: "p3"},
	})

	page1, err := b.Scroll(ctx, "chunks", ScrollRequest{Limit: 2})
	if err != nil {
		t.Fatalf("Scroll page1: %v", err)
	}
	if len(page1.Points) != 2 || page1.NextOffset == "" {
		t.Fatalf("expected a partial first page with a cursor, got %+v", page1)
	}

	page2, err := b.Scroll(ctx, "chunks", ScrollRequest{Limit: 2, Offset: page1.NextOffset})
	if err != nil {
		t.Fatalf("Scroll page2: %v", err)
	}
	if len(page2.Points) != 1 || page2.NextOffset != "" {
		t.Fatalf("expected exhausted final page, got %+v", page2)
	}
}

func intPtr(v int) *int { return &v }
