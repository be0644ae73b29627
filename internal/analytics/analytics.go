// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package analytics implements the CanRecordAnalytics capability (spec.md
// §4.K): an append-only, eventually-consistent log of one denormalised row
// per chunk, queryable as a timeline and exportable to csv/json/parquet.
// Grounded on the teacher's internal/database/events.go (EventLogger: wrap
// *sql.DB, initSchema on construction, `?`-placeholder queries against
// sqlite) — re-scoped onto this tier per SPEC_FULL.md's dependency notes,
// since spec.md requires Postgres for §4.H but leaves the optional
// analytics tier free to keep the teacher's embedded-sqlite idiom.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
)

// Granularity buckets a timeline query (spec.md §4.K).
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// TimelinePoint is one bucket of query_timeline's result.
type TimelinePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}

// TimelineQuery is query_timeline's input.
type TimelineQuery struct {
	Since       *time.Time
	Until       *time.Time
	Granularity Granularity
}

// ExportFormat selects export's output encoding.
type ExportFormat string

const (
	ExportParquet ExportFormat = "parquet"
	ExportCSV     ExportFormat = "csv"
	ExportJSON    ExportFormat = "json"
)

// ExportRequest is export's input.
type ExportRequest struct {
	Since     *time.Time
	Until     *time.Time
	OutputDir string
	Format    ExportFormat
}

// ExportResult is export's output.
type ExportResult struct {
	Files      []string
	RowCount   int
	DurationMS int64
}

// Row is one append-only analytics record: a denormalised snapshot of a
// chunk at the moment it was ingested. RecordedAt is stored as Unix
// milliseconds rather than time.Time because parquet-go's reflection-based
// writer maps struct fields onto primitive Parquet types directly; the
// TIMESTAMP_MILLIS convertedtype still needs an int64 carrier.
type Row struct {
	ChunkID        string `json:"chunk_id" parquet:"name=chunk_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SourcePath     string `json:"source_path" parquet:"name=source_path, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContentType    string `json:"content_type" parquet:"name=content_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	EmbeddingModel string `json:"embedding_model" parquet:"name=embedding_model, type=BYTE_ARRAY, convertedtype=UTF8"`
	CharCount      int64  `json:"char_count" parquet:"name=char_count, type=INT64"`
	RecordedAtMS   int64  `json:"recorded_at_ms" parquet:"name=recorded_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// RecordedAt converts the row's millisecond timestamp back to time.Time for
// CSV/JSON rendering.
func (r Row) RecordedAt() time.Time {
	return time.UnixMilli(r.RecordedAtMS).UTC()
}

// Backend is the CanRecordAnalytics capability surface.
type Backend interface {
	RecordChunk(ctx context.Context, chunk model.Chunk) error
	QueryTimeline(ctx context.Context, q TimelineQuery) ([]TimelinePoint, error)
	Export(ctx context.Context, req ExportRequest) (ExportResult, error)
	HealthCheck(ctx context.Context) error
}

// SQLiteStore is the embedded analytics tier.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or attaches to a sqlite database at path and ensures its
// schema exists, mirroring the teacher's NewEventLogger construction.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("analytics: open sqlite at %q: %w", dbPath, err)
	}
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("analytics: failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS chunk_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		content_type TEXT NOT NULL,
		embedding_model TEXT NOT NULL,
		char_count INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_events_recorded_at ON chunk_events(recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordChunk appends one row. A failure here is reported to the caller but
// must never abort an ingest (spec.md §4.K: "must not block ingestion if
// temporarily unavailable") — the coordinator is responsible for treating
// this tier's errors as non-fatal, not this method.
func (s *SQLiteStore) RecordChunk(ctx context.Context, chunk model.Chunk) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunk_events (chunk_id, source_path, content_type, embedding_model, char_count, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.Payload.FilePath, string(chunk.ContentType), chunk.EmbeddingModel, chunk.CharCount, time.Now().UTC(),
	)
	if err != nil {
		return atlaserr.Unavailable(atlaserr.TierAnalytics, fmt.Errorf("analytics: record chunk: %w", err))
	}
	return nil
}

// QueryTimeline buckets recorded_at by the requested granularity using
// sqlite's strftime, the same way the teacher formats timestamps for
// GetRecentEvents-style queries.
func (s *SQLiteStore) QueryTimeline(ctx context.Context, q TimelineQuery) ([]TimelinePoint, error) {
	bucketFmt, err := strftimeFormat(q.Granularity)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT strftime(?, recorded_at) AS bucket, COUNT(*) AS count
		FROM chunk_events
		WHERE (? IS NULL OR recorded_at >= ?) AND (? IS NULL OR recorded_at <= ?)
		GROUP BY bucket ORDER BY bucket ASC`)

	since, until := nullableTime(q.Since), nullableTime(q.Until)
	rows, err := s.db.QueryContext(ctx, query, bucketFmt, since, since, until, until)
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierAnalytics, fmt.Errorf("analytics: query_timeline: %w", err))
	}
	defer rows.Close()

	var out []TimelinePoint
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		var ts time.Time
		if q.Granularity == GranularityWeek {
			var year, week int
			if _, err = fmt.Sscanf(bucket, "%d-%d", &year, &week); err == nil {
				// %W weeks start on Monday; week 00 holds the days before the year's first Monday.
				jan1 := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
				if ts = jan1.AddDate(0, 0, (8-int(jan1.Weekday()))%7+7*(week-1)); ts.Before(jan1) {
					ts = jan1
				}
			}
		} else if ts, err = time.Parse("2006-01-02 15:04:05", bucket); err != nil {
			if ts, err = time.Parse("2006-01-02", bucket); err != nil {
				ts, err = time.Parse("2006-01", bucket)
			}
		}
		if err != nil {
			continue
		}
		out = append(out, TimelinePoint{Timestamp: ts, Count: count})
	}
	return out, rows.Err()
}

func strftimeFormat(g Granularity) (string, error) {
	switch g {
	case GranularityHour:
		return "%Y-%m-%d %H:00:00", nil
	case GranularityDay, "":
		return "%Y-%m-%d", nil
	case GranularityWeek:
		return "%Y-%W", nil
	case GranularityMonth:
		return "%Y-%m", nil
	default:
		return "", fmt.Errorf("analytics: unknown granularity %q", g)
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return atlaserr.Unavailable(atlaserr.TierAnalytics, err)
	}
	return nil
}

func (s *SQLiteStore) rowsInRange(ctx context.Context, since, until *time.Time) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, source_path, content_type, embedding_model, char_count, recorded_at
		FROM chunk_events
		WHERE (? IS NULL OR recorded_at >= ?) AND (? IS NULL OR recorded_at <= ?)
		ORDER BY recorded_at ASC`,
		nullableTime(since), nullableTime(since), nullableTime(until), nullableTime(until))
	if err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierAnalytics, fmt.Errorf("analytics: export query: %w", err))
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var recordedAt time.Time
		if err := rows.Scan(&r.ChunkID, &r.SourcePath, &r.ContentType, &r.EmbeddingModel, &r.CharCount, &recordedAt); err != nil {
			return nil, err
		}
		r.RecordedAtMS = recordedAt.UTC().UnixMilli()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Backend = (*SQLiteStore)(nil)

func logExport(format ExportFormat, rowCount int, path string) {
	logger.Debugf("analytics: exported %d rows as %s to %s", rowCount, format, path)
}
