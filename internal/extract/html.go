// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extract

import (
	"fmt"
	"io"
	"os"

	"github.com/PuerkitoBio/goquery"
)

// stripHTML parses an HTML document and returns its rendered text with
// script/style/noscript nodes removed, so neither gets embedded as though
// it were prose. Shared with the HTML-fallback path in email.go.
func stripHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	return doc.Text(), nil
}

func parseHTML(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open html: %w", err)
	}
	defer file.Close()

	text, err := stripHTML(file)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("html %s decoded to no text", filePath)
	}
	return text, nil
}
