// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package fulltext implements the CanFullTextSearch capability (spec.md
// §4.J): a bleve inverted index over chunk text, queryable with the opaque
// filter string internal/filterir produces. Grounded on
// Aman-CERP-amanmcp's internal/store/bm25.go (wrap bleve.Index, index/
// delete in batches, corruption-tolerant open), generalised from that
// repo's single-field "content" document to the multi-field document shape
// spec.md §4.J requires (original_text, file_path, file_name, qntm_keys,
// file_type, consolidation_level, content_type, created_at).
package fulltext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
)

// Document is the inverted-index record for one chunk (spec.md §4.J).
type Document struct {
	ID                 string
	OriginalText       string
	FilePath           string
	FileName           string
	QNTMKeys           []string
	FileType           string
	ConsolidationLevel int
	ContentType        string
	CreatedAt          string
}

// Hit is one ranked result from Search.
type Hit struct {
	ID           string
	OriginalText string
	FilePath     string
	Score        float64
}

// Backend is the CanFullTextSearch capability surface.
type Backend interface {
	Index(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, ids []string) error
	// Search accepts an opaque filter string produced by
	// filterir.ToFulltextString; an empty string means no filter.
	Search(ctx context.Context, query string, limit int, filter string) ([]Hit, error)
	DocCount() (uint64, error)
}

// BleveIndex adapts Backend onto bleve, matching the open/validate/recover
// shape of the teacher pack's BleveBM25Index.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// Open creates or opens a bleve index at path. An empty path builds an
// in-memory index, used by tests and UI-only deployments.
func Open(path string) (*BleveIndex, error) {
	mapping := buildIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("fulltext: create index dir: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierFulltext, fmt.Errorf("fulltext: open index at %q: %w", path, err))
	}
	return &BleveIndex{index: idx, path: path}, nil
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	chunkMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"
	numberField := bleve.NewNumericFieldMapping()

	chunkMapping.AddFieldMappingsAt("original_text", textField)
	chunkMapping.AddFieldMappingsAt("file_path", keywordField)
	chunkMapping.AddFieldMappingsAt("file_name", textField)
	chunkMapping.AddFieldMappingsAt("qntm_keys", keywordField)
	chunkMapping.AddFieldMappingsAt("file_type", keywordField)
	chunkMapping.AddFieldMappingsAt("content_type", keywordField)
	chunkMapping.AddFieldMappingsAt("consolidation_level", numberField)

	im := bleve.NewIndexMapping()
	im.AddDocumentMapping("_default", chunkMapping)
	im.DefaultAnalyzer = "standard"
	return im
}

func (b *BleveIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, docToBleve(d)); err != nil {
			return fmt.Errorf("fulltext: index %s: %w", d.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return atlaserr.Unavailable(atlaserr.TierFulltext, fmt.Errorf("fulltext: batch index: %w", err))
	}
	logger.Debugf("fulltext: indexed %d documents", len(docs))
	return nil
}

func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return atlaserr.Unavailable(atlaserr.TierFulltext, fmt.Errorf("fulltext: batch delete: %w", err))
	}
	return nil
}

// Search runs query against original_text, combined with filter (an opaque
// bleve query string per filterir.ToFulltextString) as a conjunction. An
// empty filter applies no additional constraint.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, filter string) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("original_text")

	var q = bleve.Query(matchQuery)
	if filter != "" {
		filterQuery := bleve.NewQueryStringQuery(filter)
		q = bleve.NewConjunctionQuery(matchQuery, filterQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"original_text", "file_path"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierFulltext, fmt.Errorf("fulltext: search: %w", err))
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{
			ID:           h.ID,
			Score:        h.Score,
			OriginalText: fieldString(h.Fields, "original_text"),
			FilePath:     fieldString(h.Fields, "file_path"),
		})
	}
	return hits, nil
}

func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, err := b.index.DocCount()
	if err != nil {
		return 0, atlaserr.Unavailable(atlaserr.TierFulltext, err)
	}
	return n, nil
}

func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

func docToBleve(d Document) map[string]any {
	return map[string]any{
		"original_text":       d.OriginalText,
		"file_path":           d.FilePath,
		"file_name":           d.FileName,
		"qntm_keys":           d.QNTMKeys,
		"file_type":           d.FileType,
		"consolidation_level": d.ConsolidationLevel,
		"content_type":        d.ContentType,
		"created_at":          d.CreatedAt,
	}
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromChunk adapts a model.Chunk into the index's document shape.
func FromChunk(c model.Chunk) Document {
	return Document{
		ID:                 c.ID,
		OriginalText:       c.Payload.OriginalText,
		FilePath:           c.Payload.FilePath,
		FileName:           c.Payload.FileName,
		QNTMKeys:           c.Payload.QNTMKeys,
		FileType:           c.Payload.FileType,
		ConsolidationLevel: c.ConsolidationLevel,
		ContentType:        string(c.ContentType),
		CreatedAt:          c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

var _ Backend = (*BleveIndex)(nil)
