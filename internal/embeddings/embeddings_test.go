// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/nskitch/atlas/internal/model"
)

func TestRouter_SelectsCapabilityByContentType(t *testing.T) {
	text := NewMockBackend(8, CapabilityText)
	code := NewMockBackend(8, CapabilityCode)
	router := NewRouter(text, code)

	res, warn, err := router.Embed(context.Background(), []string{"func main() {}"}, model.ContentCode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn != nil {
		t.Fatalf("expected no degrade warning, got %+v", warn)
	}
	if res.Strategy != model.StrategyCode {
		t.Errorf("expected strategy code, got %s", res.Strategy)
	}
}

func TestRouter_DegradesToTextWhenCapabilityMissing(t *testing.T) {
	text := NewMockBackend(8, CapabilityText)
	router := NewRouter(text)

	res, warn, err := router.Embed(context.Background(), []string{"a photo description"}, model.ContentMedia)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn == nil {
		t.Fatal("expected a degrade warning")
	}
	if warn.Requested != CapabilityMultimodal || warn.Used != CapabilityText {
		t.Errorf("unexpected warning shape: %+v", warn)
	}
	if res.Strategy != model.StrategySnippet {
		t.Errorf("expected degraded strategy snippet, got %s", res.Strategy)
	}
}

func TestRouter_NoBackendIsEmbedderFailure(t *testing.T) {
	router := NewRouter()

	_, _, err := router.Embed(context.Background(), []string{"x"}, model.ContentText)
	if err == nil {
		t.Fatal("expected an error with no backends registered")
	}
}

func TestRouter_DimensionMismatchIsEmbedderFailure(t *testing.T) {
	bad := &fixedDimLieBackend{MockBackend: *NewMockBackend(8, CapabilityText), lie: 16}
	router := NewRouter(bad)

	_, _, err := router.Embed(context.Background(), []string{"x"}, model.ContentText)
	if err == nil {
		t.Fatal("expected a dimension-mismatch error")
	}
}

// fixedDimLieBackend advertises one dimension but returns vectors of
// another, exercising the router's dimension-consistency check.
type fixedDimLieBackend struct {
	MockBackend
	lie int
}

func (f *fixedDimLieBackend) Embed(ctx context.Context, texts []string, cap Capability) (BatchResult, error) {
	res, err := f.MockBackend.Embed(ctx, texts, cap)
	if err != nil {
		return res, err
	}
	for i := range res.Embeddings {
		res.Embeddings[i] = make([]float32, f.lie)
	}
	return res, nil
}

func TestMockBackend_DeterministicAndNormalised(t *testing.T) {
	b := NewMockBackend(16, CapabilityText)
	res1, err := b.Embed(context.Background(), []string{"hello world"}, CapabilityText)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	res2, err := b.Embed(context.Background(), []string{"hello world"}, CapabilityText)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range res1.Embeddings[0] {
		if res1.Embeddings[0][i] != res2.Embeddings[0][i] {
			t.Fatalf("expected deterministic embedding, differed at index %d", i)
		}
	}
	var sumSq float64
	for _, x := range res1.Embeddings[0] {
		sumSq += float64(x) * float64(x)
	}
	if math.Abs(sumSq-1) > 1e-4 {
		t.Errorf("expected a unit-length embedding, got squared norm %v", sumSq)
	}
}
