// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package model holds the data types shared by every Atlas subsystem:
// sources, chunks, payloads, QNTM keys and vector points. Keeping them in
// one leaf package avoids the coordinator, the backends and the search
// engine importing one another in a cycle.
package model

import "time"

// SourceStatus is the lifecycle state of a tracked file.
type SourceStatus string

const (
	SourceActive  SourceStatus = "active"
	SourceDeleted SourceStatus = "deleted"
)

// Source is a file on disk that has been ingested at least once.
type Source struct {
	ID          string       `json:"source_id"`
	Path        string       `json:"path"`
	ContentHash string       `json:"content_hash"`
	FileMtime   time.Time    `json:"file_mtime"`
	Status      SourceStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EmbeddingStrategy selects which embedder capability produced a chunk's vectors.
type EmbeddingStrategy string

const (
	StrategySnippet        EmbeddingStrategy = "snippet"
	StrategyContextualised EmbeddingStrategy = "contextualised"
	StrategyCode           EmbeddingStrategy = "code"
	StrategyMultimodal     EmbeddingStrategy = "multimodal"
)

// ContentType classifies the source material a chunk was extracted from.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentCode  ContentType = "code"
	ContentMedia ContentType = "media"
)

// VectorName is the name under which a chunk's embedding is stored.
type VectorName string

const (
	VectorText  VectorName = "text"
	VectorCode  VectorName = "code"
	VectorMedia VectorName = "media"
)

// Chunk is a contiguous slice of a source's normalised content.
type Chunk struct {
	ID                 string            `json:"chunk_id"`
	SourceID           string            `json:"source_id"`
	ChunkIndex         int               `json:"chunk_index"`
	TotalChunks        int               `json:"total_chunks"`
	CharCount          int               `json:"char_count"`
	Payload            ChunkPayload      `json:"payload"`
	EmbeddingModel     string            `json:"embedding_model"`
	EmbeddingStrategy  EmbeddingStrategy `json:"embedding_strategy"`
	ContentType        ContentType       `json:"content_type"`
	ConsolidationLevel int               `json:"consolidation_level"`
	SupersededBy       *string           `json:"superseded_by,omitempty"`
	DeletionEligible   bool              `json:"deletion_eligible"`
	AccessCount        int64             `json:"access_count"`
	LastAccessedAt     *time.Time        `json:"last_accessed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// ChunkPayload is the self-contained record stored alongside the vector and
// keyword index, sufficient to render a search result without a join.
type ChunkPayload struct {
	OriginalText      string            `json:"original_text"`
	FilePath          string            `json:"file_path"`
	FileName          string            `json:"file_name"`
	FileType          string            `json:"file_type"`
	ChunkIndex        int               `json:"chunk_index"`
	TotalChunks       int               `json:"total_chunks"`
	CharCount         int               `json:"char_count"`
	QNTMKeys          []string          `json:"qntm_keys"`
	CreatedAt         time.Time         `json:"created_at"`
	EmbeddingModel    string            `json:"embedding_model"`
	EmbeddingStrategy EmbeddingStrategy `json:"embedding_strategy"`
	ContentType       ContentType       `json:"content_type"`
	VectorsPresent    []VectorName      `json:"vectors_present"`

	// Optional fields. Zero value means "absent", never "present and null"
	// (spec.md §9, payload schema evolution).
	ConsolidationLevel *int `json:"consolidation_level,omitempty"`
	Importance         *int `json:"importance,omitempty"`
}

// QNTMKey is a semantic tag extracted from chunk content.
type QNTMKey struct {
	Key             string    `json:"key"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	UsageCount      int64     `json:"usage_count"`
	LastUsedInChunk string    `json:"last_used_in_chunk_id,omitempty"`
}

// NamedVectors holds up to three independent embeddings for one point.
type NamedVectors map[VectorName][]float32

// VectorPoint is what the ingestion pipeline hands to the vector backend.
type VectorPoint struct {
	ID      string
	Vectors NamedVectors
	Payload ChunkPayload
}

// Distance is the similarity metric a collection was created with.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceDot       Distance = "dot"
	DistanceEuclidean Distance = "euclidean"
)

// CollectionConfig describes an immutable vector collection at creation time.
type CollectionConfig struct {
	Dimensions     int
	Distance       Distance
	HNSWM          int
	HNSWEfConstruct int
	Quantisation   bool
}

// CollectionInfo reports current collection size.
type CollectionInfo struct {
	PointsCount int64
	Dimensions  int
	Segments    int
}

// CollectionStats is the rolled-up view exposed through the stats API.
type CollectionStats struct {
	CollectionName string    `json:"collection_name"`
	TotalChunks    int64     `json:"total_chunks"`
	TotalFiles     int64     `json:"total_files"`
	TotalChars     int64     `json:"total_chars"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ResultOrigin tags which backend produced a search hit, since scores from
// different backends are never comparable (spec.md §4.N).
type ResultOrigin string

const (
	OriginSemantic ResultOrigin = "semantic"
	OriginKeyword  ResultOrigin = "keyword"
)

// SearchHit is one ranked result returned to the caller.
type SearchHit struct {
	ID      string
	Score   float32
	Payload ChunkPayload
	Origin  ResultOrigin
}

// PayloadSchema is the field type used when creating a payload index on the
// vector backend (spec.md §4.G).
type PayloadSchema string

const (
	SchemaKeyword  PayloadSchema = "keyword"
	SchemaInteger  PayloadSchema = "integer"
	SchemaFloat    PayloadSchema = "float"
	SchemaBool     PayloadSchema = "bool"
	SchemaDatetime PayloadSchema = "datetime"
)
