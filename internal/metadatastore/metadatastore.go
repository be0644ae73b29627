// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package metadatastore implements the CanStoreMetadata capability (spec.md
// §4.H): the relational tier of record for sources, chunks, and QNTM keys.
// Grounded on the teacher's internal/database package (NewSystemMetadataStore
// /NewEventLogger's "wrap *sql.DB, initSchema on construction, wrapped
// fmt.Errorf on every query" idiom) but re-pointed from sqlite/database/sql
// at Postgres via pgx/v5's pool, since spec.md requires a real relational
// tier rather than an embedded file (the sqlite idiom is kept for the
// optional analytics tier instead, see internal/analytics).
package metadatastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
)

// Backend is the CanStoreMetadata capability surface (spec.md §4.H). It is
// satisfied by *Store, and its first two methods are exactly
// sourcetrack.SourceLookup, so any Backend also satisfies that narrower
// interface — the tracker depends on it rather than this one to avoid
// importing this package.
type Backend interface {
	GetSourceByPath(ctx context.Context, path string) (*model.Source, error)
	GetChunkIDsForSource(ctx context.Context, sourceID string) ([]string, error)

	UpsertSource(ctx context.Context, src model.Source) (model.Source, error)
	UpsertChunks(ctx context.Context, chunks []model.Chunk) error
	MarkDeletionEligible(ctx context.Context, sourceID string, chunkIDs []string) error
	GetChunkByID(ctx context.Context, id string) (*model.Chunk, error)
	GetAllQNTMKeys(ctx context.Context) ([]model.QNTMKey, error)
	RecordQNTMKeys(ctx context.Context, chunkID string, keys []string) error
	GetCollectionStats(ctx context.Context, collection string) (model.CollectionStats, error)
	HealthCheck(ctx context.Context) error
}

// Store is the Postgres-backed implementation of Backend.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store over an existing pool and ensures the schema exists,
// mirroring the teacher's "NewXStore initialises its own schema" pattern.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize metadata schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		content_hash TEXT NOT NULL,
		file_mtime TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL REFERENCES sources(id),
		chunk_index INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		char_count INTEGER NOT NULL,
		payload JSONB NOT NULL,
		embedding_model TEXT NOT NULL,
		embedding_strategy TEXT NOT NULL,
		content_type TEXT NOT NULL,
		consolidation_level INTEGER NOT NULL DEFAULT 0,
		superseded_by TEXT,
		deletion_eligible BOOLEAN NOT NULL DEFAULT false,
		access_count BIGINT NOT NULL DEFAULT 0,
		last_accessed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_deletion_eligible ON chunks(deletion_eligible);

	CREATE TABLE IF NOT EXISTS qntm_keys (
		key TEXT PRIMARY KEY,
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL,
		usage_count BIGINT NOT NULL DEFAULT 0,
		last_used_in_chunk_id TEXT
	);

	CREATE TABLE IF NOT EXISTS chunk_qntm_keys (
		chunk_id TEXT NOT NULL,
		qntm_key TEXT NOT NULL,
		PRIMARY KEY (chunk_id, qntm_key)
	);

	CREATE TABLE IF NOT EXISTS collection_stats (
		collection_name TEXT PRIMARY KEY,
		total_chunks BIGINT NOT NULL DEFAULT 0,
		total_files BIGINT NOT NULL DEFAULT 0,
		total_chars BIGINT NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// GetSourceByPath satisfies sourcetrack.SourceLookup; returns nil, nil when
// the path has never been ingested (not an error, matching the teacher's
// sql.ErrNoRows-to-zero-value convention in system_metadata.go).
func (s *Store) GetSourceByPath(ctx context.Context, path string) (*model.Source, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, path, content_hash, file_mtime, status, created_at, updated_at
		FROM sources WHERE path = $1`, path)

	var src model.Source
	var status string
	if err := row.Scan(&src.ID, &src.Path, &src.ContentHash, &src.FileMtime, &status, &src.CreatedAt, &src.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("get_source_by_path: %w", err))
	}
	src.Status = model.SourceStatus(status)
	return &src, nil
}

// GetChunkIDsForSource satisfies sourcetrack.SourceLookup.
func (s *Store) GetChunkIDsForSource(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("get_chunk_ids_for_source: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertSource inserts or updates the sources row for src.Path, returning
// the row as stored. The id is src.ID on first insert; on a path conflict
// the existing row keeps its stored id.
func (s *Store) UpsertSource(ctx context.Context, src model.Source) (model.Source, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sources (id, path, content_hash, file_mtime, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (path) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			file_mtime   = EXCLUDED.file_mtime,
			status       = EXCLUDED.status,
			updated_at   = now()
		RETURNING id, path, content_hash, file_mtime, status, created_at, updated_at
	`, src.ID, src.Path, src.ContentHash, src.FileMtime, string(src.Status))

	var out model.Source
	var status string
	if err := row.Scan(&out.ID, &out.Path, &out.ContentHash, &out.FileMtime, &status, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return model.Source{}, atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("upsert_source: %w", err))
	}
	out.Status = model.SourceStatus(status)
	logger.Debugf("metadatastore: upserted source %s (%s)", out.ID, out.Path)
	return out, nil
}

// UpsertChunks writes chunks and their QNTM key associations inside one
// transaction, since every write that touches chunks.payload.qntm_keys must
// also update qntm_keys/chunk_qntm_keys atomically (spec.md §4.H).
func (s *Store) UpsertChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("upsert_chunks begin: %w", err))
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		if err := upsertChunkTx(ctx, tx, c); err != nil {
			return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("upsert_chunks: %w", err))
		}
		if err := recordQNTMKeysTx(ctx, tx, c.ID, c.Payload.QNTMKeys); err != nil {
			return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("upsert_chunks qntm: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("upsert_chunks commit: %w", err))
	}
	logger.Debugf("metadatastore: upserted %d chunks", len(chunks))
	return nil
}

func upsertChunkTx(ctx context.Context, tx pgx.Tx, c model.Chunk) error {
	payload, err := marshalPayload(c.Payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO chunks (
			id, source_id, chunk_index, total_chunks, char_count, payload,
			embedding_model, embedding_strategy, content_type,
			consolidation_level, superseded_by, deletion_eligible,
			access_count, last_accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			total_chunks        = EXCLUDED.total_chunks,
			char_count           = EXCLUDED.char_count,
			payload              = EXCLUDED.payload,
			embedding_model      = EXCLUDED.embedding_model,
			embedding_strategy   = EXCLUDED.embedding_strategy,
			content_type         = EXCLUDED.content_type,
			consolidation_level  = EXCLUDED.consolidation_level,
			superseded_by        = EXCLUDED.superseded_by,
			deletion_eligible    = EXCLUDED.deletion_eligible
	`,
		c.ID, c.SourceID, c.ChunkIndex, c.TotalChunks, c.CharCount, payload,
		c.EmbeddingModel, string(c.EmbeddingStrategy), string(c.ContentType),
		c.ConsolidationLevel, c.SupersededBy, c.DeletionEligible,
		c.AccessCount, c.LastAccessedAt,
	)
	return err
}

// GetChunkByID returns nil, nil when the chunk doesn't exist.
func (s *Store) GetChunkByID(ctx context.Context, id string) (*model.Chunk, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_id, chunk_index, total_chunks, char_count, payload,
			embedding_model, embedding_strategy, content_type,
			consolidation_level, superseded_by, deletion_eligible,
			access_count, last_accessed_at, created_at
		FROM chunks WHERE id = $1`, id)

	var c model.Chunk
	var embStrategy, contentType string
	var payloadBytes []byte
	if err := row.Scan(
		&c.ID, &c.SourceID, &c.ChunkIndex, &c.TotalChunks, &c.CharCount, &payloadBytes,
		&c.EmbeddingModel, &embStrategy, &contentType,
		&c.ConsolidationLevel, &c.SupersededBy, &c.DeletionEligible,
		&c.AccessCount, &c.LastAccessedAt, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("get_chunk_by_id: %w", err))
	}
	c.EmbeddingStrategy = model.EmbeddingStrategy(embStrategy)
	c.ContentType = model.ContentType(contentType)
	payload, err := unmarshalPayload(payloadBytes)
	if err != nil {
		return nil, err
	}
	c.Payload = payload
	return &c, nil
}

// GetAllQNTMKeys returns every known key, used by the fulltext/search layer
// for QNTM-assisted query expansion.
func (s *Store) GetAllQNTMKeys(ctx context.Context) ([]model.QNTMKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, first_seen_at, last_seen_at, usage_count, COALESCE(last_used_in_chunk_id, '')
		FROM qntm_keys ORDER BY usage_count DESC`)
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("get_all_qntm_keys: %w", err))
	}
	defer rows.Close()

	var out []model.QNTMKey
	for rows.Next() {
		var k model.QNTMKey
		if err := rows.Scan(&k.Key, &k.FirstSeenAt, &k.LastSeenAt, &k.UsageCount, &k.LastUsedInChunk); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// RecordQNTMKeys is the standalone entry point for recording keys outside a
// chunk upsert (e.g. a re-index pass); UpsertChunks calls the same
// transactional logic inline so both paths keep qntm_keys/chunk_qntm_keys in
// sync with chunks.payload.qntm_keys.
func (s *Store) RecordQNTMKeys(ctx context.Context, chunkID string, keys []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("record_qntm_keys begin: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := recordQNTMKeysTx(ctx, tx, chunkID, keys); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("record_qntm_keys: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("record_qntm_keys commit: %w", err))
	}
	return nil
}

func recordQNTMKeysTx(ctx context.Context, tx pgx.Tx, chunkID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	now := time.Now()
	for _, k := range keys {
		_, err := tx.Exec(ctx, `
			INSERT INTO qntm_keys (key, first_seen_at, last_seen_at, usage_count, last_used_in_chunk_id)
			VALUES ($1, $2, $2, 1, $3)
			ON CONFLICT (key) DO UPDATE SET
				last_seen_at          = $2,
				usage_count           = qntm_keys.usage_count + 1,
				last_used_in_chunk_id = $3
		`, k, now, chunkID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunk_qntm_keys (chunk_id, qntm_key) VALUES ($1, $2)
			ON CONFLICT (chunk_id, qntm_key) DO NOTHING
		`, chunkID, k); err != nil {
			return err
		}
	}
	return nil
}

// GetCollectionStats returns the rolled-up counters for collection, zero
// value if the collection has never been touched.
func (s *Store) GetCollectionStats(ctx context.Context, collection string) (model.CollectionStats, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT collection_name, total_chunks, total_files, total_chars, last_updated
		FROM collection_stats WHERE collection_name = $1`, collection)

	var stats model.CollectionStats
	if err := row.Scan(&stats.CollectionName, &stats.TotalChunks, &stats.TotalFiles, &stats.TotalChars, &stats.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CollectionStats{CollectionName: collection}, nil
		}
		return model.CollectionStats{}, atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("get_collection_stats: %w", err))
	}
	return stats, nil
}

// MarkDeletionEligible flags chunkIDs (and their source) as deletion
// eligible without physically removing the rows, per spec.md §4.F point 4:
// a deleted file's chunks stay queryable until a separate reaping pass
// decides to purge them.
func (s *Store) MarkDeletionEligible(ctx context.Context, sourceID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("mark_deletion_eligible begin: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE chunks SET deletion_eligible = true WHERE id = ANY($1)`, chunkIDs); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("mark_deletion_eligible chunks: %w", err))
	}
	if _, err := tx.Exec(ctx, `UPDATE sources SET status = $1, updated_at = now() WHERE id = $2`, string(model.SourceDeleted), sourceID); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("mark_deletion_eligible source: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, fmt.Errorf("mark_deletion_eligible commit: %w", err))
	}
	logger.Debugf("metadatastore: marked %d chunks deletion_eligible for source %s", len(chunkIDs), sourceID)
	return nil
}

// HealthCheck is the metadata tier's contribution to the coordinator's
// rolled-up health report (spec.md §4.L).
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return atlaserr.Unavailable(atlaserr.TierMetadata, err)
	}
	return nil
}

var _ Backend = (*Store)(nil)
