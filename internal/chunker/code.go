// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// codeLanguages maps file extensions to their tree-sitter grammar and the
// set of top-level node types the chunker treats as construct boundaries.
// Grounded on Aman-CERP-amanmcp's internal/chunk/languages.go registry,
// trimmed to the boundary-detection concern (spec.md §4.D only needs
// "prefer top-level construct boundaries when detectable", not full symbol
// extraction with doc-comment stitching).
var codeLanguages = map[string]struct {
	lang       *sitter.Language
	boundaries map[string]bool
}{
	".go": {golang.GetLanguage(), map[string]bool{
		"function_declaration": true, "method_declaration": true,
		"type_declaration": true, "const_declaration": true, "var_declaration": true,
	}},
	".py": {python.GetLanguage(), map[string]bool{
		"function_definition": true, "class_definition": true,
	}},
	".js": {javascript.GetLanguage(), map[string]bool{
		"function_declaration": true, "class_declaration": true,
		"lexical_declaration": true, "variable_declaration": true,
	}},
}

func init() {
	codeLanguages[".jsx"] = codeLanguages[".js"]
	codeLanguages[".mjs"] = codeLanguages[".js"]
}

// splitCodeWithExt chunks code by top-level AST construct when ext has a
// registered grammar and the parse succeeds; it falls back to the
// fixed-size splitter on parse failure or for languages without a grammar,
// per spec.md §4.D ("fixed-size with overlap as a fallback when no
// boundary is detectable").
func (c *Chunker) splitCodeWithExt(text, ext string) []string {
	lang, ok := codeLanguages[strings.ToLower(ext)]
	if !ok {
		return c.splitFixed(text)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(text))
	if err != nil || tree == nil {
		return c.splitFixed(text)
	}

	root := tree.RootNode()
	var segments []string
	var cursor int

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil || !lang.boundaries[child.Type()] {
			continue
		}
		start := int(child.StartByte())
		end := int(child.EndByte())
		if start > cursor {
			// Leading material (imports, package clause, comments) rides
			// along with the next construct rather than forming its own
			// tiny chunk.
			start = cursor
		}
		segment := text[start:end]
		if len(segment) > c.opts.CharSize*2 {
			segments = append(segments, c.splitFixed(segment)...)
		} else {
			segments = append(segments, segment)
		}
		cursor = end
	}

	if len(segments) == 0 {
		return c.splitFixed(text)
	}
	if cursor < len(text) && strings.TrimSpace(text[cursor:]) != "" {
		segments = append(segments, text[cursor:])
	}
	return segments
}

// splitFixed is the fixed-size-with-overlap fallback for code without a
// detectable boundary (spec.md §4.D).
func (c *Chunker) splitFixed(text string) []string {
	var chunks []string
	start := 0
	n := len(text)
	for start < n {
		end := start + c.opts.CharSize
		if end > n {
			end = n
		}
		chunks = append(chunks, text[start:end])
		if end >= n {
			break
		}
		next := end - c.opts.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// extOf returns the lower-cased extension of the source path, which picks
// the grammar for code chunking, since content-type alone does not carry
// the language.
func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
