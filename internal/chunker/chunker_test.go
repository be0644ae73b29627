// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"strings"
	"testing"

	"github.com/nskitch/atlas/internal/model"
)

func TestChunker_ShortText(t *testing.T) {
	c := New(DefaultOptions())
	text := "This is a short text that should not be split."

	chunks := c.Split(text, model.ContentText, "notes.md")

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for short text, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("chunk content mismatch: got %q, want %q", chunks[0].Text, text)
	}
	if chunks[0].TotalChunks != 1 {
		t.Errorf("expected total_chunks 1, got %d", chunks[0].TotalChunks)
	}
}

func TestChunker_LongTextSplits(t *testing.T) {
	c := New(DefaultOptions())
	paragraph := "This is a sample paragraph. It contains multiple sentences. Each sentence ends with a period. "
	text := strings.Repeat(paragraph, 40) // ~3800 chars

	chunks := c.Split(text, model.ContentText, "notes.md")

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks for long text, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has chunk_index %d", i, ch.ChunkIndex)
		}
		if ch.TotalChunks != len(chunks) {
			t.Errorf("chunk %d has total_chunks %d, want %d", i, ch.TotalChunks, len(chunks))
		}
		if ch.CharCount != len(ch.Text) {
			t.Errorf("chunk %d char_count %d does not match text length %d", i, ch.CharCount, len(ch.Text))
		}
	}
}

func TestChunker_EmptyText(t *testing.T) {
	c := New(DefaultOptions())

	chunks := c.Split("", model.ContentText, "empty.txt")

	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks for empty text, got %d", len(chunks))
	}
}

func TestChunker_NoMidWordSplit(t *testing.T) {
	c := New(Options{CharSize: 50, Overlap: 5})
	text := strings.Repeat("supercalifragilisticexpialidocious ", 20)

	chunks := c.Split(text, model.ContentText, "words.txt")

	for _, ch := range chunks {
		trimmed := strings.TrimSpace(ch.Text)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "fragilistic") || strings.HasSuffix(trimmed, "superc") {
			t.Errorf("chunk appears to split mid-word: %q", trimmed)
		}
	}
}

func TestChunker_GoCodeSplitsOnTopLevelDecls(t *testing.T) {
	c := New(DefaultOptions())
	src := `package demo

import "fmt"

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}

type Widget struct {
	Name string
}
`
	chunks := c.Split(src, model.ContentCode, "demo.go")

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for multi-declaration Go source, got %d", len(chunks))
	}

	joined := strings.Builder{}
	for _, ch := range chunks {
		joined.WriteString(ch.Text)
	}
	for _, want := range []string{"func Add", "func Sub", "type Widget"} {
		if !strings.Contains(joined.String(), want) {
			t.Errorf("expected reconstructed chunks to contain %q", want)
		}
	}
}

func TestChunker_UnknownLanguageFallsBackToFixedSize(t *testing.T) {
	c := New(Options{CharSize: 100, Overlap: 10})
	src := strings.Repeat("x = 1\n", 50)

	chunks := c.Split(src, model.ContentCode, "script.zig")

	if len(chunks) < 2 {
		t.Fatalf("expected fixed-size fallback to split unrecognised language, got %d chunks", len(chunks))
	}
}

func TestExtractQNTMKeys_DropsStopwordsAndCaps(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog the fox runs fast fox fox fox"
	keys := extractQNTMKeys(text)

	if len(keys) == 0 {
		t.Fatal("expected at least one keyword")
	}
	if len(keys) > maxQNTMKeys {
		t.Errorf("got %d keys, want at most %d", len(keys), maxQNTMKeys)
	}
	if keys[0] != "fox" {
		t.Errorf("expected most frequent term 'fox' first, got %q", keys[0])
	}
	for _, k := range keys {
		if qntmStopwords[k] {
			t.Errorf("stopword %q leaked into qntm keys", k)
		}
	}
}
