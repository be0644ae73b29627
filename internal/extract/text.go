// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extract

import (
	"fmt"
	"os"
)

// parseText reads plain text and source files verbatim. An empty file is
// not an error — it is the zero-length boundary case from spec.md §8,
// handled downstream by the chunker producing zero chunks.
func parseText(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(content), nil
}
