// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

// MockBackend generates deterministic embeddings for tests and offline
// development, grounded on the teacher's MockEmbedder. It advertises
// whichever capabilities it is constructed with, so tests can exercise
// both the "every capability present" and "degrade to text" paths.
type MockBackend struct {
	dim  int
	caps []Capability
}

// NewMockBackend builds a mock backend with the given dimension,
// advertising caps (defaulting to CapabilityText if none given).
func NewMockBackend(dim int, caps ...Capability) *MockBackend {
	if len(caps) == 0 {
		caps = []Capability{CapabilityText}
	}
	return &MockBackend{dim: dim, caps: caps}
}

func (m *MockBackend) Name() string               { return "mock" }
func (m *MockBackend) Capabilities() []Capability  { return m.caps }
func (m *MockBackend) Dimensions(Capability) int   { return m.dim }
func (m *MockBackend) MaxBatch() int               { return 256 }
func (m *MockBackend) MaxTokens() int              { return 8192 }

func (m *MockBackend) Embed(ctx context.Context, texts []string, cap Capability) (BatchResult, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, m.dim)
	}
	return BatchResult{
		Embeddings: out,
		Model:      "mock-" + string(cap),
		Strategy:   strategyFor(cap),
		Dimensions: m.dim,
	}, nil
}

// deterministicVector hashes text into a unit-length pseudo-embedding, the
// same construction the teacher's MockEmbedder used.
func deterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dim)
	for i := 0; i < dim; i++ {
		v[i] = float32(math.Sin(float64(seed*uint32(i+1)) * 0.1))
	}

	var sum float32
	for _, x := range v {
		sum += x * x
	}
	norm := float32(math.Sqrt(float64(sum)))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

var _ Backend = (*MockBackend)(nil)
