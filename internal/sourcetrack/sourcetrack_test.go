// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package sourcetrack

import (
	"context"
	"testing"
	"time"

	"github.com/nskitch/atlas/internal/chunker"
	"github.com/nskitch/atlas/internal/model"
)

type fakeLookup struct {
	source   *model.Source
	chunkIDs []string
}

func (f *fakeLookup) GetSourceByPath(ctx context.Context, path string) (*model.Source, error) {
	return f.source, nil
}

func (f *fakeLookup) GetChunkIDsForSource(ctx context.Context, sourceID string) ([]string, error) {
	return f.chunkIDs, nil
}

func chunksOf(texts ...string) []chunker.Chunk {
	out := make([]chunker.Chunk, len(texts))
	for i, t := range texts {
		out[i] = chunker.Chunk{Text: t, ChunkIndex: i, TotalChunks: len(texts), CharCount: len(t)}
	}
	return out
}

func TestDecide_NewFileUpsertsEverything(t *testing.T) {
	lookup := &fakeLookup{}
	mtime := time.Now()

	d, err := Decide(context.Background(), lookup, "/docs/a.md", mtime, chunksOf("one", "two"))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Kind != KindNew {
		t.Fatalf("expected KindNew, got %s", d.Kind)
	}
	if len(d.Upsert) != 2 {
		t.Errorf("expected 2 chunks to upsert, got %d", len(d.Upsert))
	}
	if len(d.StaleChunkIDs) != 0 {
		t.Errorf("expected no stale chunks for a new file, got %d", len(d.StaleChunkIDs))
	}
}

func TestDecide_UnchangedContentAndMtimeIsNoOp(t *testing.T) {
	mtime := time.Now()
	chunks := chunksOf("one", "two")
	sourceID := SourceID(CanonicalPath("/docs/a.md"))
	hash := ContentHash(chunks)

	lookup := &fakeLookup{source: &model.Source{
		ID: sourceID, Path: CanonicalPath("/docs/a.md"), ContentHash: hash, FileMtime: mtime,
	}}

	d, err := Decide(context.Background(), lookup, "/docs/a.md", mtime, chunks)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Kind != KindNoOp {
		t.Fatalf("expected KindNoOp, got %s", d.Kind)
	}
	if len(d.Upsert) != 0 {
		t.Errorf("expected no upserts on no-op, got %d", len(d.Upsert))
	}
}

func TestDecide_ReingestDiffsChunkSet(t *testing.T) {
	oldMtime := time.Now().Add(-time.Hour)
	newMtime := time.Now()
	oldChunks := chunksOf("one", "two", "three")
	sourceID := SourceID(CanonicalPath("/docs/a.md"))
	oldHash := ContentHash(oldChunks)

	oldIDs := make([]string, len(oldChunks))
	for i, c := range oldChunks {
		oldIDs[i] = ChunkID(sourceID, c.ChunkIndex, c.Text)
	}

	lookup := &fakeLookup{
		source:   &model.Source{ID: sourceID, Path: CanonicalPath("/docs/a.md"), ContentHash: oldHash, FileMtime: oldMtime},
		chunkIDs: oldIDs,
	}

	newChunks := chunksOf("one", "two-changed")
	d, err := Decide(context.Background(), lookup, "/docs/a.md", newMtime, newChunks)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Kind != KindReingest {
		t.Fatalf("expected KindReingest, got %s", d.Kind)
	}
	if len(d.Upsert) != 1 {
		t.Fatalf("expected exactly 1 changed chunk to upsert (two-changed; 'one' unchanged), got %d", len(d.Upsert))
	}
	if d.Upsert[0].Text != "two-changed" {
		t.Errorf("expected upserted chunk to be 'two-changed', got %q", d.Upsert[0].Text)
	}
	if len(d.StaleChunkIDs) != 2 {
		t.Fatalf("expected 2 stale chunk ids ('two' and 'three' dropped), got %d", len(d.StaleChunkIDs))
	}
}

func TestDecideDelete_MarksAllChunksStale(t *testing.T) {
	sourceID := SourceID(CanonicalPath("/docs/a.md"))
	lookup := &fakeLookup{chunkIDs: []string{"c1", "c2"}}

	d, err := DecideDelete(context.Background(), lookup, "/docs/a.md")
	if err != nil {
		t.Fatalf("decide delete: %v", err)
	}
	if d.Kind != KindDelete {
		t.Fatalf("expected KindDelete, got %s", d.Kind)
	}
	if d.SourceID != sourceID {
		t.Errorf("source id mismatch")
	}
	if len(d.StaleChunkIDs) != 2 {
		t.Errorf("expected both existing chunks marked stale, got %d", len(d.StaleChunkIDs))
	}
}

func TestChunkID_StableAcrossSameSourceAndText(t *testing.T) {
	id1 := ChunkID("src1", 0, "hello")
	id2 := ChunkID("src1", 0, "hello")
	id3 := ChunkID("src1", 0, "world")

	if id1 != id2 {
		t.Error("expected identical chunk id for identical input")
	}
	if id1 == id3 {
		t.Error("expected different chunk id for different text")
	}
}
