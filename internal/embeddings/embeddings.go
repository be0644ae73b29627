// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package embeddings implements the capability-set embedder model from
// spec.md §4.E: a backend advertises the subset of {text, code,
// contextualised, multimodal} it can serve, and selection runs by content
// type with degrade-to-text on an unavailable capability. Grounded on the
// teacher's internal/embeddings package (single-Embedder interface,
// provider-by-string construction); generalised here to a capability set
// because the teacher had no multi-strategy routing at all.
package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
)

// Capability is one of the embedding modes a backend can serve.
type Capability string

const (
	CapabilityText           Capability = "text"
	CapabilityCode           Capability = "code"
	CapabilityContextualised Capability = "contextualised"
	CapabilityMultimodal     Capability = "multimodal"
)

// Usage reports token accounting for a batch call, when the backend
// supplies it; zero values mean the backend did not report usage.
type Usage struct {
	PromptTokens int
	TotalTokens  int
}

// BatchResult is the embedder operation's return shape (spec.md §4.E).
type BatchResult struct {
	Embeddings [][]float32
	Model      string
	Strategy   model.EmbeddingStrategy
	Dimensions int
	Usage      *Usage
}

// Backend is one embedding provider. A backend advertises which
// Capabilities it serves; Embed is only ever called with a capability the
// backend reported supporting.
type Backend interface {
	Name() string
	Capabilities() []Capability
	Dimensions(cap Capability) int
	MaxBatch() int
	MaxTokens() int
	Embed(ctx context.Context, texts []string, cap Capability) (BatchResult, error)
}

// DegradeWarning is attached to a chunk (via the caller) when selection had
// to fall back to CapabilityText because the content type's natural
// capability was unavailable (spec.md §4.E).
type DegradeWarning struct {
	Requested Capability
	Used      Capability
	Reason    string
}

// Router selects a Backend capability by content type and calls through to
// it, implementing the degrade-to-text policy.
type Router struct {
	backends []Backend
}

// NewRouter builds a Router over one or more backends, tried in the order
// given; the first backend advertising the requested capability wins.
func NewRouter(backends ...Backend) *Router {
	return &Router{backends: backends}
}

// capabilityFor maps a content type to its natural embedding capability
// (spec.md §4.E: "code -> code, text -> text, media -> multimodal").
func capabilityFor(ct model.ContentType) Capability {
	switch ct {
	case model.ContentCode:
		return CapabilityCode
	case model.ContentMedia:
		return CapabilityMultimodal
	default:
		return CapabilityText
	}
}

// strategyFor maps the resolved capability to the chunk's embedding_strategy
// enum (spec.md §3).
func strategyFor(cap Capability) model.EmbeddingStrategy {
	switch cap {
	case CapabilityCode:
		return model.StrategyCode
	case CapabilityMultimodal:
		return model.StrategyMultimodal
	case CapabilityContextualised:
		return model.StrategyContextualised
	default:
		return model.StrategySnippet
	}
}

func (r *Router) find(cap Capability) Backend {
	for _, b := range r.backends {
		for _, c := range b.Capabilities() {
			if c == cap {
				return b
			}
		}
	}
	return nil
}

// Embed resolves the capability for contentType, degrading to
// CapabilityText with a *DegradeWarning when the natural capability has no
// backend (spec.md §4.E). It returns an atlaserr.KindEmbedderFailure if no
// backend serves even the degraded capability, or if dimensions returned
// don't match what the backend advertised.
func (r *Router) Embed(ctx context.Context, texts []string, contentType model.ContentType) (BatchResult, *DegradeWarning, error) {
	wanted := capabilityFor(contentType)
	backend := r.find(wanted)

	var warn *DegradeWarning
	cap := wanted
	if backend == nil && wanted != CapabilityText {
		backend = r.find(CapabilityText)
		if backend != nil {
			warn = &DegradeWarning{Requested: wanted, Used: CapabilityText, Reason: "no backend advertises requested capability"}
			cap = CapabilityText
			logger.Warnf("embeddings: degrading %s -> text (no backend for %s)", contentType, wanted)
		}
	}
	if backend == nil {
		return BatchResult{}, nil, atlaserr.New(atlaserr.KindEmbedderFailure, fmt.Sprintf("no embedder backend for capability %s", wanted), nil)
	}

	start := time.Now()
	res, err := backend.Embed(ctx, texts, cap)
	if err != nil {
		return BatchResult{}, warn, atlaserr.New(atlaserr.KindEmbedderFailure, fmt.Sprintf("backend %s embed failed", backend.Name()), err)
	}

	want := backend.Dimensions(cap)
	for i, v := range res.Embeddings {
		if want > 0 && len(v) != want {
			return BatchResult{}, warn, atlaserr.New(atlaserr.KindEmbedderFailure,
				fmt.Sprintf("backend %s returned %d dims for item %d, want %d", backend.Name(), len(v), i, want), nil)
		}
	}

	if res.Strategy == "" {
		res.Strategy = strategyFor(cap)
	}
	logger.Debugf("embeddings: %s embedded %d texts via %s/%s in %s", backend.Name(), len(texts), contentType, cap, time.Since(start))
	return res, warn, nil
}
