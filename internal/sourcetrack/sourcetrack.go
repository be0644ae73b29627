// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package sourcetrack implements the content-address and source tracker
// from spec.md §4.F: canonicalising a path into a stable source_id,
// content-addressing chunks so re-ingest can diff new output against what
// is already stored, and deciding new/no-op/re-ingest/delete. Grounded on
// the teacher's internal/drone/watcher/decision.go (DecisionEngine /
// FileDecision), generalised from "hash the whole file, compare against a
// local sqlite ClientDB" to "hash per canonical path and per chunk text,
// compare against whatever SourceLookup the metadata backend provides" —
// Atlas has no local ClientDB; the metadata tier (§4.H) is the source of
// truth.
package sourcetrack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/nskitch/atlas/internal/chunker"
	"github.com/nskitch/atlas/internal/model"
)

// Kind classifies the tracker's decision for a file event.
type Kind string

const (
	KindNew      Kind = "new"
	KindNoOp     Kind = "noop"
	KindReingest Kind = "reingest"
	KindDelete   Kind = "delete"
)

// SourceLookup is the read surface sourcetrack needs from the metadata
// backend (§4.H); kept as a narrow interface here so this package never
// imports the concrete postgres store.
type SourceLookup interface {
	GetSourceByPath(ctx context.Context, path string) (*model.Source, error)
	GetChunkIDsForSource(ctx context.Context, sourceID string) ([]string, error)
}

// IdentifiedChunk pairs a chunker.Chunk with the content-addressed ID it
// will be stored under.
type IdentifiedChunk struct {
	chunker.Chunk
	ID string
}

// Decision is the tracker's output for one file event (spec.md §4.F).
type Decision struct {
	Kind        Kind
	SourceID    string
	Path        string
	ContentHash string
	FileMtime   time.Time

	// Upsert holds the chunks that must be (re)written — all of them for
	// KindNew, only the changed ones for KindReingest, none for KindNoOp
	// or KindDelete.
	Upsert []IdentifiedChunk

	// StaleChunkIDs holds previously stored chunk IDs absent from the new
	// set; the coordinator marks these deletion_eligible rather than
	// deleting them outright (spec.md §4.F point 3 and point 4).
	StaleChunkIDs []string
}

// hashHex is the canonical content-address primitive used throughout this
// package: sha256, lower-hex, matching the teacher's calculateFileHash
// format.
func hashHex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalPath normalises a filesystem path to the form source_id is
// derived from. It does not resolve symlinks: a delete event's path may no
// longer exist on disk, and symlink resolution would fail or change
// identity out from under a file the tracker must still be able to name.
func CanonicalPath(path string) string {
	return filepath.Clean(filepath.ToSlash(path))
}

// SourceID derives the stable source_id for a canonical path (spec.md §3,
// §4.F point 1).
func SourceID(canonicalPath string) string {
	return hashHex("source:", canonicalPath)
}

// ChunkID content-addresses a chunk within a source: same text at the same
// source and chunk_index always yields the same ID, so re-ingest with
// unchanged content is a true no-op and shifted-but-identical chunks are
// recognised as "the same chunk" rather than churned.
func ChunkID(sourceID string, chunkIndex int, text string) string {
	return hashHex("chunk:", sourceID, ":", itoa(chunkIndex), ":", text)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ContentHash hashes the joined chunk text of a produced chunk set
// (spec.md §4.F point 2).
func ContentHash(chunks []chunker.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return hashHex("content:", strings.Join(texts, "\x00"))
}

// Decide implements the file-event decision tree of spec.md §4.F points
// 1-3. chunks must already be the product of running §4.D chunking over the
// file's current content.
func Decide(ctx context.Context, lookup SourceLookup, path string, mtime time.Time, chunks []chunker.Chunk) (*Decision, error) {
	canonical := CanonicalPath(path)
	sourceID := SourceID(canonical)
	contentHash := ContentHash(chunks)

	prev, err := lookup.GetSourceByPath(ctx, canonical)
	if err != nil {
		return nil, err
	}

	base := &Decision{
		SourceID:    sourceID,
		Path:        canonical,
		ContentHash: contentHash,
		FileMtime:   mtime,
	}

	if prev == nil {
		base.Kind = KindNew
		base.Upsert = identify(sourceID, chunks)
		return base, nil
	}

	if prev.ContentHash == contentHash && prev.FileMtime.Equal(mtime) {
		base.Kind = KindNoOp
		return base, nil
	}

	base.Kind = KindReingest
	newChunks := identify(sourceID, chunks)
	newIDs := make(map[string]bool, len(newChunks))
	for _, c := range newChunks {
		newIDs[c.ID] = true
	}

	oldIDs, err := lookup.GetChunkIDsForSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	oldIDSet := make(map[string]bool, len(oldIDs))
	for _, old := range oldIDs {
		oldIDSet[old] = true
	}

	// Only chunks whose content-addressed ID wasn't already stored need to
	// be upserted; an unchanged chunk under the new set is a no-op write
	// the coordinator doesn't need to repeat.
	for _, c := range newChunks {
		if !oldIDSet[c.ID] {
			base.Upsert = append(base.Upsert, c)
		}
	}
	for _, old := range oldIDs {
		if !newIDs[old] {
			base.StaleChunkIDs = append(base.StaleChunkIDs, old)
		}
	}

	return base, nil
}

// DecideDelete implements spec.md §4.F point 4 for a file-removal event:
// the source is marked deleted and every chunk it owns is marked
// deletion_eligible, without physically removing vectors.
func DecideDelete(ctx context.Context, lookup SourceLookup, path string) (*Decision, error) {
	canonical := CanonicalPath(path)
	sourceID := SourceID(canonical)

	oldIDs, err := lookup.GetChunkIDsForSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	return &Decision{
		Kind:          KindDelete,
		SourceID:      sourceID,
		Path:          canonical,
		StaleChunkIDs: oldIDs,
	}, nil
}

func identify(sourceID string, chunks []chunker.Chunk) []IdentifiedChunk {
	out := make([]IdentifiedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = IdentifiedChunk{Chunk: c, ID: ChunkID(sourceID, c.ChunkIndex, c.Text)}
	}
	return out
}
