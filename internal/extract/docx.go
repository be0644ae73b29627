// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extract

import (
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// parseDOCX extracts the editable body text of a Word document. Atlas only
// needs the plain-text body the chunker will later split on paragraph
// boundaries (spec.md §4.D); revision marks, headers/footers, and styling
// are not carried forward.
func parseDOCX(filePath string) (string, error) {
	doc, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())
	if text == "" {
		return "", fmt.Errorf("docx %s decoded to no text", filePath)
	}
	return text, nil
}
