// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extract

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/nskitch/atlas/internal/logger"
)

// parsePDF renders every page of a PDF to text via MuPDF and joins them
// with a blank-line separator, so the chunker's paragraph-boundary search
// (spec.md §4.D) still sees page breaks as natural split points. A page
// that fails to render is skipped and logged rather than aborting the
// whole document.
func parsePDF(filePath string) (string, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var builder strings.Builder
	numPages := doc.NumPage()
	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			logger.Debugf("extract: %s: page %d failed to render, skipping: %v", filePath, i, err)
			continue
		}
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(pageText)
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("pdf %s decoded to no text across %d pages", filePath, numPages)
	}
	return text, nil
}
