// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaBackend uses a local Ollama instance for text embeddings, grounded
// on the teacher's OllamaEmbedder. Ollama's embedding endpoint takes one
// prompt per call, so Embed is sequential, matching the teacher.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
	dim     int
	caps    []Capability
}

// NewOllamaBackend builds a backend against an Ollama server. caps defaults
// to CapabilityText; pass CapabilityCode too for a code-tuned model such as
// nomic-embed-code.
func NewOllamaBackend(baseURL, modelName string, dim int, caps ...Capability) *OllamaBackend {
	if len(caps) == 0 {
		caps = []Capability{CapabilityText}
	}
	if dim == 0 {
		dim = 768 // nomic-embed-text default
	}
	return &OllamaBackend{
		baseURL: baseURL,
		model:   modelName,
		client:  &http.Client{Timeout: 60 * time.Second},
		dim:     dim,
		caps:    caps,
	}
}

func (o *OllamaBackend) Name() string              { return "ollama:" + o.model }
func (o *OllamaBackend) Capabilities() []Capability { return o.caps }
func (o *OllamaBackend) Dimensions(Capability) int  { return o.dim }
func (o *OllamaBackend) MaxBatch() int              { return 32 }
func (o *OllamaBackend) MaxTokens() int             { return 8192 }

func (o *OllamaBackend) Embed(ctx context.Context, texts []string, cap Capability) (BatchResult, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := o.embedOne(ctx, text)
		if err != nil {
			return BatchResult{}, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return BatchResult{
		Embeddings: out,
		Model:      o.model,
		Strategy:   strategyFor(cap),
		Dimensions: o.dim,
	}, nil
}

func (o *OllamaBackend) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: o.model, Prompt: text}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	v := make([]float32, len(parsed.Embedding))
	for i, f := range parsed.Embedding {
		v[i] = float32(f)
	}
	return v, nil
}

var _ Backend = (*OllamaBackend)(nil)
