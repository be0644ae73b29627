// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package fulltext

import (
	"context"
	"testing"
)

func TestBleveIndex_IndexAndSearch(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	docs := []Document{
		{ID: "1", OriginalText: "the quick brown fox jumps over the lazy dog", FilePath: "a.txt", FileType: "txt"},
		{ID: "2", OriginalText: "an entirely unrelated sentence about databases", FilePath: "b.txt", FileType: "txt"},
	}
	if err := idx.Index(ctx, docs); err != nil {
		t.Fatalf("Index: %v", err)
	}

	hits, err := idx.Search(ctx, "fox", 10, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "1" {
		t.Fatalf("expected doc 1 to match 'fox', got %+v", hits)
	}
}

func TestBleveIndex_SearchAppliesOpaqueFilterString(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	docs := []Document{
		{ID: "keep", OriginalText: "databases are useful", FilePath: "keep.txt", FileType: "txt"},
		{ID: "drop", OriginalText: "databases are useful", FilePath: "drop.txt", FileType: "md"},
	}
	if err := idx.Index(ctx, docs); err != nil {
		t.Fatalf("Index: %v", err)
	}

	hits, err := idx.Search(ctx, "databases", 10, `file_type:txt`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "keep" {
		t.Fatalf("expected only the txt document to survive the filter, got %+v", hits)
	}
}

func TestBleveIndex_DeleteRemovesDocument(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	_ = idx.Index(ctx, []Document{{ID: "gone", OriginalText: "ephemeral content"}})

	if err := idx.Delete(ctx, []string{"gone"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	hits, err := idx.Search(ctx, "ephemeral", 10, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected deleted document to be gone, got %+v", hits)
	}
}

func TestBleveIndex_DocCount(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	_ = idx.Index(ctx, []Document{{ID: "1", OriginalText: "one"}, {ID: "2", OriginalText: "two"}})

	n, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 documents, got %d", n)
	}
}
