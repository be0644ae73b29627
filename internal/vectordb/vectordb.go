// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package vectordb implements the CanStoreVectors capability (spec.md
// §4.G): named-vector points, full must/must_not/should filtering via
// internal/filterir, scroll pagination, payload merge, collection
// lifecycle, and a bulk-load HNSW toggle. Grounded on the teacher's
// internal/vectordb/vectordb.go, generalised from a single unnamed vector
// per point to up to three named vectors (text/code/media) and from a
// hand-rolled metadata map to the structured model.ChunkPayload.
package vectordb

import (
	"context"
	"errors"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/nskitch/atlas/internal/filterir"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
)

// SearchRequest is the vector backend's search operation input (spec.md
// §4.G).
type SearchRequest struct {
	VectorName     model.VectorName
	Vector         []float32
	Limit          int
	Filter         *filterir.Filter
	ScoreThreshold *float32
	WithPayload    bool
	WithVector     bool
}

// ScrollRequest is the cursor-based pagination input (spec.md §4.G).
type ScrollRequest struct {
	Limit  int
	Offset string // empty means "from the start"
	Filter *filterir.Filter
}

// ScrollResult pages through a collection; NextOffset is empty iff the
// scroll is exhausted.
type ScrollResult struct {
	Points     []model.VectorPoint
	NextOffset string
}

// Backend is the CanStoreVectors capability surface.
type Backend interface {
	Exists(ctx context.Context, collection string) (bool, error)
	Create(ctx context.Context, collection string, cfg model.CollectionConfig) error
	DeleteCollection(ctx context.Context, collection string) error
	GetInfo(ctx context.Context, collection string) (model.CollectionInfo, error)

	Upsert(ctx context.Context, collection string, points []model.VectorPoint) error
	Search(ctx context.Context, collection string, req SearchRequest) ([]model.SearchHit, error)
	Retrieve(ctx context.Context, collection string, ids []string) ([]model.VectorPoint, error)
	Delete(ctx context.Context, collection string, ids []string) error
	Scroll(ctx context.Context, collection string, req ScrollRequest) (ScrollResult, error)
	SetPayload(ctx context.Context, collection string, ids []string, partial map[string]any) error

	CreatePayloadIndex(ctx context.Context, collection, field string, schema model.PayloadSchema) error
	DisableHNSW(ctx context.Context, collection string) error
	EnableHNSW(ctx context.Context, collection string, m, efConstruct int) error
}

// namedVectorOrder fixes the iteration order used whenever named vectors
// are listed, so tests and logs are deterministic.
var namedVectorOrder = []model.VectorName{model.VectorText, model.VectorCode, model.VectorMedia}

// QdrantBackend adapts the Backend interface onto Qdrant's gRPC API.
type QdrantBackend struct {
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
}

// NewQdrantBackend builds a Backend over an existing gRPC connection.
func NewQdrantBackend(conn *grpc.ClientConn) (*QdrantBackend, error) {
	if conn == nil {
		return nil, errors.New("gRPC connection is required")
	}
	return &QdrantBackend{
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
	}, nil
}

func (q *QdrantBackend) Exists(ctx context.Context, collection string) (bool, error) {
	list, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.Collections {
		if c.Name == collection {
			return true, nil
		}
	}
	return false, nil
}

func toQdrantDistance(d model.Distance) qdrant.Distance {
	switch d {
	case model.DistanceDot:
		return qdrant.Distance_Dot
	case model.DistanceEuclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func (q *QdrantBackend) Create(ctx context.Context, collection string, cfg model.CollectionConfig) error {
	params := make(map[string]*qdrant.VectorParams, len(namedVectorOrder))
	for _, name := range namedVectorOrder {
		vp := &qdrant.VectorParams{
			Size:     uint64(cfg.Dimensions),
			Distance: toQdrantDistance(cfg.Distance),
		}
		if cfg.HNSWM > 0 || cfg.HNSWEfConstruct > 0 {
			vp.HnswConfig = &qdrant.HnswConfigDiff{
				M:             optUint64(cfg.HNSWM),
				EfConstruct:   optUint64(cfg.HNSWEfConstruct),
			}
		}
		params[string(name)] = vp
	}

	req := &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_ParamsMap{
				ParamsMap: &qdrant.VectorParamsMap{Map: params},
			},
		},
	}
	if cfg.Quantisation {
		req.QuantizationConfig = &qdrant.QuantizationConfig{
			Quantization: &qdrant.QuantizationConfig_Scalar{
				Scalar: &qdrant.ScalarQuantization{Type: qdrant.QuantizationType_Int8},
			},
		}
	}

	if _, err := q.collections.Create(ctx, req); err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	logger.Debugf("vectordb: created collection %s (dims=%d, distance=%s)", collection, cfg.Dimensions, cfg.Distance)
	return nil
}

func optUint64(v int) *uint64 {
	if v <= 0 {
		return nil
	}
	u := uint64(v)
	return &u
}

func (q *QdrantBackend) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := q.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: collection}); err != nil {
		return fmt.Errorf("delete collection %s: %w", collection, err)
	}
	return nil
}

func (q *QdrantBackend) GetInfo(ctx context.Context, collection string) (model.CollectionInfo, error) {
	info, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return model.CollectionInfo{}, fmt.Errorf("get collection info %s: %w", collection, err)
	}
	var count int64
	if info.Result != nil && info.Result.PointsCount != nil {
		count = int64(*info.Result.PointsCount)
	}
	var segments int
	if info.Result != nil {
		segments = int(info.Result.SegmentsCount)
	}
	return model.CollectionInfo{PointsCount: count, Segments: segments}, nil
}

func (q *QdrantBackend) Upsert(ctx context.Context, collection string, points []model.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vectors := make(map[string]*qdrant.Vector, len(p.Vectors))
		for name, v := range p.Vectors {
			if len(v) == 0 {
				continue
			}
			vectors[string(name)] = &qdrant.Vector{Data: v}
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vectors{Vectors: &qdrant.NamedVectors{Vectors: vectors}}},
			Payload: payloadToQdrant(p.Payload),
		})
	}

	if _, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: structs}); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

func (q *QdrantBackend) Search(ctx context.Context, collection string, req SearchRequest) ([]model.SearchHit, error) {
	if len(req.Vector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	sp := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         req.Vector,
		VectorName:     strPtr(string(req.VectorName)),
		Limit:          uint64(limit),
		WithPayload:    withPayloadSelector(req.WithPayload),
		WithVectors:    withVectorsSelector(req.WithVector),
		ScoreThreshold: req.ScoreThreshold,
	}
	if req.Filter != nil {
		sp.Filter = toQdrantFilter(filterir.ToVectorFilter(*req.Filter))
	}

	res, err := q.points.Search(ctx, sp)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	hits := make([]model.SearchHit, 0, len(res.Result))
	for _, sp := range res.Result {
		hits = append(hits, model.SearchHit{
			ID:      pointIDToString(sp.Id),
			Score:   sp.Score,
			Payload: payloadFromQdrant(sp.Payload),
			Origin:  model.OriginSemantic,
		})
	}
	return hits, nil
}

func (q *QdrantBackend) Retrieve(ctx context.Context, collection string, ids []string) ([]model.VectorPoint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}

	res, err := q.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    withPayloadSelector(true),
		WithVectors:    withVectorsSelector(true),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve from %s: %w", collection, err)
	}

	out := make([]model.VectorPoint, 0, len(res.Result))
	for _, p := range res.Result {
		out = append(out, model.VectorPoint{
			ID:      pointIDToString(p.Id),
			Vectors: vectorsFromQdrant(p.Vectors),
			Payload: payloadFromQdrant(p.Payload),
		})
	}
	return out, nil
}

func (q *QdrantBackend) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: pointIDs},
		}},
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

func (q *QdrantBackend) Scroll(ctx context.Context, collection string, req ScrollRequest) (ScrollResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}

	sr := &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          optUint32(limit),
		WithPayload:    withPayloadSelector(true),
		WithVectors:    withVectorsSelector(false),
	}
	if req.Offset != "" {
		sr.Offset = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: req.Offset}}
	}
	if req.Filter != nil {
		sr.Filter = toQdrantFilter(filterir.ToVectorFilter(*req.Filter))
	}

	res, err := q.points.Scroll(ctx, sr)
	if err != nil {
		return ScrollResult{}, fmt.Errorf("scroll %s: %w", collection, err)
	}

	points := make([]model.VectorPoint, 0, len(res.Result))
	for _, p := range res.Result {
		points = append(points, model.VectorPoint{
			ID:      pointIDToString(p.Id),
			Vectors: vectorsFromQdrant(p.Vectors),
			Payload: payloadFromQdrant(p.Payload),
		})
	}

	var next string
	if res.NextPageOffset != nil {
		next = pointIDToString(res.NextPageOffset)
	}
	return ScrollResult{Points: points, NextOffset: next}, nil
}

func (q *QdrantBackend) SetPayload(ctx context.Context, collection string, ids []string, partial map[string]any) error {
	if len(ids) == 0 || len(partial) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}

	payload := make(map[string]*qdrant.Value, len(partial))
	for k, v := range partial {
		payload[k] = anyToQdrantValue(v)
	}

	_, err := q.points.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: collection,
		Payload:        payload,
		PointsSelector: &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: pointIDs},
		}},
	})
	if err != nil {
		return fmt.Errorf("set_payload on %s: %w", collection, err)
	}
	return nil
}

func toFieldType(schema model.PayloadSchema) qdrant.FieldType {
	switch schema {
	case model.SchemaInteger:
		return qdrant.FieldType_FieldTypeInteger
	case model.SchemaFloat:
		return qdrant.FieldType_FieldTypeFloat
	case model.SchemaBool:
		return qdrant.FieldType_FieldTypeBool
	case model.SchemaDatetime:
		return qdrant.FieldType_FieldTypeDatetime
	default:
		return qdrant.FieldType_FieldTypeKeyword
	}
}

func (q *QdrantBackend) CreatePayloadIndex(ctx context.Context, collection, field string, schema model.PayloadSchema) error {
	ft := toFieldType(schema)
	_, err := q.points.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		FieldType:      &ft,
	})
	if err != nil {
		return fmt.Errorf("create payload index %s.%s: %w", collection, field, err)
	}
	return nil
}

// DisableHNSW sets m=0, which Qdrant treats as "build no HNSW graph",
// suitable for a bulk-load window (spec.md §4.G, §5).
func (q *QdrantBackend) DisableHNSW(ctx context.Context, collection string) error {
	zero := uint64(0)
	_, err := q.collections.Update(ctx, &qdrant.UpdateCollection{
		CollectionName: collection,
		HnswConfig:     &qdrant.HnswConfigDiff{M: &zero},
	})
	if err != nil {
		return fmt.Errorf("disable hnsw on %s: %w", collection, err)
	}
	logger.Debugf("vectordb: disabled HNSW on %s for bulk load", collection)
	return nil
}

// EnableHNSW restores the graph parameters after a bulk load, triggering a
// rebuild (spec.md §5).
func (q *QdrantBackend) EnableHNSW(ctx context.Context, collection string, m, efConstruct int) error {
	_, err := q.collections.Update(ctx, &qdrant.UpdateCollection{
		CollectionName: collection,
		HnswConfig:     &qdrant.HnswConfigDiff{M: optUint64(m), EfConstruct: optUint64(efConstruct)},
	})
	if err != nil {
		return fmt.Errorf("enable hnsw on %s: %w", collection, err)
	}
	logger.Debugf("vectordb: re-enabled HNSW on %s (m=%d, ef_construct=%d)", collection, m, efConstruct)
	return nil
}

var _ Backend = (*QdrantBackend)(nil)
