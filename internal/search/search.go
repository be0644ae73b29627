// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package search implements the query engine from spec.md §4.N: semantic,
// keyword, and hybrid modes over the storage coordinator, always combining
// the caller's filter with the fixed search-inclusion policy from
// internal/filterir. Grounded on the teacher's internal/embeddings usage
// pattern (embed, then call a single downstream capability) generalised
// to fan the embed step into two parallel coordinator calls for hybrid
// mode.
package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/embeddings"
	"github.com/nskitch/atlas/internal/filterir"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
	"github.com/nskitch/atlas/internal/vectordb"
)

// Mode selects which of the three query strategies in spec.md §4.N to run.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
)

// Request is the engine's single entry point input.
type Request struct {
	Mode           Mode
	Query          string
	Limit          int
	Filter         filterir.Filter
	ScoreThreshold *float32
}

// coordinatorAPI is the narrow slice of *coordinator.Coordinator the search
// engine depends on, kept local so this package never imports coordinator
// (which would otherwise import search back through the orchestrator).
type coordinatorAPI interface {
	SearchSemantic(ctx context.Context, req vectordb.SearchRequest) ([]model.SearchHit, error)
	FullTextSearch(ctx context.Context, query string, limit int, filter filterir.Filter) ([]model.SearchHit, error)
}

// Engine runs the three query modes against a coordinator and an embedder
// router, applying the fixed inclusion filter from every path.
type Engine struct {
	Coordinator coordinatorAPI
	Embedder    *embeddings.Router
}

// New builds a search Engine.
func New(coord coordinatorAPI, embedder *embeddings.Router) *Engine {
	return &Engine{Coordinator: coord, Embedder: embedder}
}

// Search dispatches to the requested mode (spec.md §4.N).
func (e *Engine) Search(ctx context.Context, req Request) ([]model.SearchHit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	effective := combineFilter(req.Filter)

	var hits []model.SearchHit
	var err error
	switch req.Mode {
	case ModeSemantic:
		hits, err = e.semantic(ctx, req.Query, limit, effective, req.ScoreThreshold)
	case ModeKeyword:
		hits, err = e.keyword(ctx, req.Query, limit, effective)
	case ModeHybrid, "":
		hits, err = e.hybrid(ctx, req.Query, limit, effective, req.ScoreThreshold)
	default:
		return nil, atlaserr.New(atlaserr.KindConfigInvalid, fmt.Sprintf("search: unknown mode %q", req.Mode), nil)
	}
	if err == nil && len(hits) == 0 {
		logger.Tracef("search: zero results for %q (mode=%s), effective filter: %+v", req.Query, req.Mode, effective)
	}
	return hits, err
}

// combineFilter ANDs the caller's filter with the fixed search-inclusion
// policy (spec.md §4.M: "the engine must not" user-omit this clause).
func combineFilter(user filterir.Filter) filterir.Filter {
	base := filterir.SearchInclusionFilter()
	return filterir.Filter{
		Must:    user.Must,
		MustNot: append(append([]filterir.Condition{}, base.MustNot...), user.MustNot...),
		Should:  user.Should,
	}
}

func (e *Engine) semantic(ctx context.Context, query string, limit int, filter filterir.Filter, threshold *float32) ([]model.SearchHit, error) {
	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := e.Coordinator.SearchSemantic(ctx, vectordb.SearchRequest{
		VectorName:     model.VectorText,
		Vector:         vec,
		Limit:          limit,
		Filter:         &filter,
		ScoreThreshold: threshold,
		WithPayload:    true,
	})
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Origin = model.OriginSemantic
	}
	return hits, nil
}

func (e *Engine) keyword(ctx context.Context, query string, limit int, filter filterir.Filter) ([]model.SearchHit, error) {
	hits, err := e.Coordinator.FullTextSearch(ctx, query, limit, filter)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Origin = model.OriginKeyword
	}
	return hits, nil
}

// hybrid runs semantic and keyword concurrently, then fuses by priority
// concatenation: semantic first in its own order, then keyword results not
// already present by id, stopping at limit (spec.md §4.N — explicitly NOT
// reciprocal rank fusion). Grounded on Aman-CERP-amanmcp's
// pkg/searcher/fusion.go hybridSearch: errgroup.WithContext drives the fan
// out, but each goroutine always returns nil to the group and stashes its
// error in a local var instead, so one branch erroring never cancels the
// derived context the other branch is still running under. No per-branch
// timeout is set here: each branch runs until its coordinator call returns
// or ctx is done.
func (e *Engine) hybrid(ctx context.Context, query string, limit int, filter filterir.Filter, threshold *float32) ([]model.SearchHit, error) {
	var semHits, kwHits []model.SearchHit
	var semErr, kwErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		semHits, semErr = e.semantic(gctx, query, limit, filter, threshold)
		return nil
	})
	g.Go(func() error {
		kwHits, kwErr = e.keyword(gctx, query, limit, filter)
		return nil
	})
	_ = g.Wait()

	if semErr != nil && kwErr != nil {
		return nil, fmt.Errorf("hybrid search: both branches failed: semantic=%v keyword=%v", semErr, kwErr)
	}
	if semErr != nil {
		logger.Warnf("hybrid search: semantic branch failed, continuing with keyword only: %v", semErr)
	}
	if kwErr != nil {
		logger.Warnf("hybrid search: keyword branch failed, continuing with semantic only: %v", kwErr)
	}

	return fusePriorityConcat(semHits, kwHits, limit), nil
}

func fusePriorityConcat(semantic, keyword []model.SearchHit, limit int) []model.SearchHit {
	seen := make(map[string]bool, len(semantic))
	out := make([]model.SearchHit, 0, limit)
	for _, h := range semantic {
		if len(out) >= limit {
			return out
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	for _, h := range keyword {
		if len(out) >= limit {
			return out
		}
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	return out
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	res, warn, err := e.Embedder.Embed(ctx, []string{query}, model.ContentText)
	if err != nil {
		return nil, err
	}
	if warn != nil {
		logger.Warnf("search: query embedding degraded %s -> %s: %s", warn.Requested, warn.Used, warn.Reason)
	}
	if len(res.Embeddings) == 0 {
		return nil, atlaserr.New(atlaserr.KindEmbedderFailure, "search: embedder returned no vector for query", nil)
	}
	return res.Embeddings[0], nil
}
