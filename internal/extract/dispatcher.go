// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
)

// ContentTypeFor classifies a file's extension into the chunker's
// content-type axis (spec.md §3, §4.D). Anything source-code shaped is
// ContentCode so the chunker and embedder route it through code-aware
// handling; everything this package can extract text from is ContentText.
func ContentTypeFor(filePath string) model.ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".c", ".h", ".cpp",
		".hpp", ".cs", ".rb", ".rs", ".php", ".kt", ".swift", ".scala", ".sh":
		return model.ContentCode
	default:
		return model.ContentText
	}
}

// File routes a file to the appropriate extractor based on its extension and
// returns its plain-text content. A zero-length result is not an error
// (spec.md §8 boundary behaviour: "zero-length text file: chunker returns
// zero chunks"); extractors that cannot decode any content at all return an
// atlaserr.KindChunkerIO error instead.
func File(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	var text string
	var err error

	switch ext {
	case ".pdf":
		text, err = parsePDF(filePath)
	case ".docx":
		text, err = parseDOCX(filePath)
	case ".xlsx", ".xls":
		text, err = parseExcel(filePath)
	case ".html", ".htm":
		text, err = parseHTML(filePath)
	case ".eml":
		text, err = parseEmail(filePath)
	default:
		// Plain text and every code extension the chunker understands are
		// read verbatim; ContentTypeFor decides how they are chunked.
		text, err = parseText(filePath)
	}

	if err != nil {
		return "", atlaserr.New(atlaserr.KindChunkerIO, fmt.Sprintf("extract %s", filePath), err)
	}

	logger.Debugf("extract: %s -> %d characters", filePath, len(text))
	return text, nil
}

// IsSupportedFile reports whether filePath has a recognised extension.
// Unknown extensions still fall through to parseText in File, so this is
// advisory (used by the watcher to pre-filter obviously irrelevant files,
// e.g. binaries), not authoritative.
func IsSupportedFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	supported := []string{
		".pdf", ".docx", ".txt", ".md", ".xlsx", ".xls", ".html", ".htm", ".eml",
		".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".c", ".h", ".cpp",
		".hpp", ".cs", ".rb", ".rs", ".php", ".kt", ".swift", ".scala", ".sh",
		".json", ".yaml", ".yml", ".toml",
	}
	for _, s := range supported {
		if ext == s {
			return true
		}
	}
	return false
}

// IsTemporaryFile reports whether filePath looks like an editor or OS swap
// file that should never be watched.
func IsTemporaryFile(filePath string) bool {
	base := filepath.Base(filePath)
	if strings.HasPrefix(base, "~$") {
		return true
	}
	if strings.HasPrefix(base, "._") {
		return true
	}
	if strings.HasSuffix(base, ".tmp") {
		return true
	}
	return false
}
