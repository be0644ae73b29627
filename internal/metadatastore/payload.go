// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadatastore

import (
	"encoding/json"
	"fmt"

	"github.com/nskitch/atlas/internal/model"
)

// marshalPayload/unmarshalPayload store ChunkPayload as a single JSONB
// column rather than one column per field: the payload already has its own
// JSON tags (model.ChunkPayload) matching what the vector/fulltext backends
// serialise, so the metadata tier keeps byte-identical field names across
// tiers instead of maintaining a second column mapping.
func marshalPayload(p model.ChunkPayload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk payload: %w", err)
	}
	return b, nil
}

func unmarshalPayload(b []byte) (model.ChunkPayload, error) {
	var p model.ChunkPayload
	if len(b) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return model.ChunkPayload{}, fmt.Errorf("unmarshal chunk payload: %w", err)
	}
	return p, nil
}
