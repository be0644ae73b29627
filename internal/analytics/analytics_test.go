// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package analytics

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nskitch/atlas/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "analytics.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RecordChunkAndQueryTimeline(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chunk := model.Chunk{
		ID:             "c1",
		ContentType:    model.ContentText,
		EmbeddingModel: "mock",
		CharCount:      120,
		Payload:        model.ChunkPayload{FilePath: "/docs/a.md"},
	}
	if err := store.RecordChunk(ctx, chunk); err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}

	points, err := store.QueryTimeline(ctx, TimelineQuery{Granularity: GranularityDay})
	if err != nil {
		t.Fatalf("QueryTimeline: %v", err)
	}
	if len(points) != 1 || points[0].Count != 1 {
		t.Fatalf("expected one bucket with count 1, got %+v", points)
	}
}

func TestSQLiteStore_ExportCSV(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = store.RecordChunk(ctx, model.Chunk{ID: "c", ContentType: model.ContentText, EmbeddingModel: "mock", CharCount: 10})
	}

	dir := t.TempDir()
	result, err := store.Export(ctx, ExportRequest{OutputDir: dir, Format: ExportCSV})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.RowCount != 3 || len(result.Files) != 1 {
		t.Fatalf("expected 3 rows in 1 file, got %+v", result)
	}

	f, err := os.Open(result.Files[0])
	if err != nil {
		t.Fatalf("open exported file: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 { // header + 3 rows
		t.Errorf("expected header + 3 rows, got %d lines", len(records))
	}
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.RecordChunk(ctx, model.Chunk{ID: "c", ContentType: model.ContentCode, EmbeddingModel: "mock", CharCount: 50})

	dir := t.TempDir()
	result, err := store.Export(ctx, ExportRequest{OutputDir: dir, Format: ExportJSON})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.RowCount != 1 {
		t.Fatalf("expected 1 row, got %+v", result)
	}
}

func TestSQLiteStore_QueryTimelineRespectsSinceUntil(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.RecordChunk(ctx, model.Chunk{ID: "c", ContentType: model.ContentText, EmbeddingModel: "mock"})

	future := time.Now().UTC().Add(24 * time.Hour)
	points, err := store.QueryTimeline(ctx, TimelineQuery{Since: &future, Granularity: GranularityDay})
	if err != nil {
		t.Fatalf("QueryTimeline: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("expected no buckets for a since in the future, got %+v", points)
	}
}
