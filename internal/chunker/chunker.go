// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package chunker splits a source's extracted text into semantically
// bounded chunks (spec.md §4.D). The sentence/paragraph-boundary search is
// grounded on the teacher's internal/processor/chunker.go; code-aware
// splitting is grounded on Aman-CERP-amanmcp's use of
// github.com/smacker/go-tree-sitter for structural boundaries. The chunker
// is pure: no I/O, no network, same as the teacher's.
package chunker

import (
	"strings"
	"unicode"

	"github.com/nskitch/atlas/internal/model"
)

// Options bounds chunk size; Overlap only applies to the fixed-size
// fallback path (code without detectable boundaries, or text with none).
type Options struct {
	CharSize int
	Overlap  int
}

// DefaultOptions mirrors the teacher's defaults (~1000 chars, 100 overlap).
func DefaultOptions() Options {
	return Options{CharSize: 1000, Overlap: 100}
}

// Chunk is the chunker's pure output, pre-IDs and pre-embeddings: the
// orchestrator stamps id/source_id/embedding fields in once chunking and
// embedding both succeed.
type Chunk struct {
	Text        string
	ChunkIndex  int
	TotalChunks int
	CharCount   int
	QNTMKeys    []string
}

// Chunker splits normalised content into bounded chunks, policy depending
// on content type (spec.md §4.D).
type Chunker struct {
	opts Options
}

// New builds a Chunker with the given options.
func New(opts Options) *Chunker {
	if opts.CharSize <= 0 {
		opts = DefaultOptions()
	}
	return &Chunker{opts: opts}
}

// Split chunks text per contentType. Media content has already been
// converted to text by the extraction front-end (internal/extract) before
// reaching here, per spec.md §4.D ("the extractor supplies text; chunker
// then treats as text"). sourcePath is used only to pick a tree-sitter
// grammar for code content and may be empty for non-code content; Split
// itself holds no state and is safe to call concurrently from multiple
// goroutines against the same Chunker (spec.md §4.D "pure, no I/O").
func (c *Chunker) Split(text string, contentType model.ContentType, sourcePath string) []Chunk {
	if len(text) == 0 {
		return nil
	}

	var raw []string
	switch contentType {
	case model.ContentCode:
		raw = c.splitCodeWithExt(text, extOf(sourcePath))
	default:
		raw = c.splitText(text)
	}

	chunks := make([]Chunk, 0, len(raw))
	for i, t := range raw {
		if strings.TrimSpace(t) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:       t,
			ChunkIndex: i,
			CharCount:  len(t),
			QNTMKeys:   extractQNTMKeys(t),
		})
	}
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// splitText prefers paragraph, then sentence, boundaries; it never splits
// mid-word, matching the teacher's approach in internal/processor/chunker.go.
func (c *Chunker) splitText(text string) []string {
	var chunks []string
	start := 0
	textLen := len(text)

	for start < textLen {
		end := start + c.opts.CharSize
		if end > textLen {
			end = textLen
		}

		if end < textLen {
			end = findBreakPoint(text, start, end)
		}
		end = avoidMidWord(text, end, textLen)

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= textLen {
			break
		}

		next := end - c.opts.Overlap
		if next <= start {
			next = end
		}
		for next < end && !unicode.IsSpace(rune(text[next-1])) {
			next++
		}
		start = next
	}

	return chunks
}

// findBreakPoint looks backward from end for a paragraph or sentence
// boundary within the last 200 characters, as the teacher does.
func findBreakPoint(text string, start, end int) int {
	searchStart := end - 200
	if searchStart < start {
		searchStart = start
	}

	best := end
	for i := end - 1; i >= searchStart; i-- {
		ch := text[i]
		if i+1 < len(text) && ch == '\n' && text[i+1] == '\n' {
			return i + 2
		}
		if (ch == '.' || ch == '!' || ch == '?') && i+1 < len(text) {
			next := text[i+1]
			if next == ' ' || next == '\n' || next == '\r' {
				best = i + 1
				break
			}
		}
	}
	return best
}

// avoidMidWord nudges end forward to the next rune boundary/whitespace so a
// chunk never splits a word (spec.md §4.D invariant for text).
func avoidMidWord(text string, end, textLen int) int {
	if end >= textLen {
		return textLen
	}
	for end < textLen && !unicode.IsSpace(rune(text[end])) && !unicode.IsSpace(rune(text[end-1])) {
		end++
	}
	return end
}
