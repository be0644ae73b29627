// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"regexp"
	"sort"
	"strings"
)

// qntmStopwords mirrors the short stopword set the teacher's tagger used to
// prune generic English filler before scoring keyword candidates.
var qntmStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "by": true, "from": true, "as": true, "it": true, "this": true,
	"that": true, "these": true, "those": true, "not": true, "no": true,
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_\-]{2,}`)

const maxQNTMKeys = 8

// extractQNTMKeys derives a small set of free-text keyword tags from a
// chunk's text (spec.md §4.D qntm_keys). This is a lightweight
// frequency-based heuristic, not a trained extractor: it lower-cases words
// of length >= 3, drops stopwords, and keeps the most frequent distinct
// terms up to maxQNTMKeys, breaking ties alphabetically for determinism.
func extractQNTMKeys(text string) []string {
	counts := make(map[string]int)
	for _, w := range wordPattern.FindAllString(text, -1) {
		lw := strings.ToLower(w)
		if qntmStopwords[lw] {
			continue
		}
		counts[lw]++
	}
	if len(counts) == 0 {
		return nil
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if len(keys) > maxQNTMKeys {
		keys = keys[:maxQNTMKeys]
	}
	return keys
}
