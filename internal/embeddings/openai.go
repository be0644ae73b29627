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

// OpenAIBackend calls OpenAI's embeddings API, grounded on the teacher's
// OpenAIEmbedder. A single backend instance always serves one capability
// axis (text, or a code-tuned model pointed at a different model_id), since
// OpenAI has no single endpoint that serves both natively.
type OpenAIBackend struct {
	apiKey string
	model  string
	client *http.Client
	dim    int
	caps   []Capability
}

// NewOpenAIBackend builds a backend for one OpenAI embedding model.
func NewOpenAIBackend(apiKey, modelName string, caps ...Capability) *OpenAIBackend {
	dim := 1536
	if modelName == "text-embedding-3-large" {
		dim = 3072
	}
	if len(caps) == 0 {
		caps = []Capability{CapabilityText}
	}
	return &OpenAIBackend{
		apiKey: apiKey,
		model:  modelName,
		client: &http.Client{Timeout: 30 * time.Second},
		dim:    dim,
		caps:   caps,
	}
}

func (o *OpenAIBackend) Name() string              { return "openai:" + o.model }
func (o *OpenAIBackend) Capabilities() []Capability { return o.caps }
func (o *OpenAIBackend) Dimensions(Capability) int  { return o.dim }
func (o *OpenAIBackend) MaxBatch() int              { return 2048 }
func (o *OpenAIBackend) MaxTokens() int             { return 8191 }

func (o *OpenAIBackend) Embed(ctx context.Context, texts []string, cap Capability) (BatchResult, error) {
	payload := struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: texts, Model: o.model}

	body, err := json.Marshal(payload)
	if err != nil {
		return BatchResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return BatchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return BatchResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return BatchResult{}, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return BatchResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return BatchResult{}, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			out[i][j] = float32(f)
		}
	}

	return BatchResult{
		Embeddings: out,
		Model:      o.model,
		Strategy:   strategyFor(cap),
		Dimensions: o.dim,
		Usage:      &Usage{PromptTokens: parsed.Usage.PromptTokens, TotalTokens: parsed.Usage.TotalTokens},
	}, nil
}

var _ Backend = (*OpenAIBackend)(nil)
