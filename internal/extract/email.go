// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extract

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mnako/letters"

	"github.com/nskitch/atlas/internal/logger"
)

// parseEmail extracts a searchable text body from an EML message: a short
// header block (subject, sender, date) followed by the message body. The
// plain-text part is preferred; an HTML-only message is run through
// stripHTML (html.go) rather than embedded with its markup intact.
func parseEmail(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open eml: %w", err)
	}
	defer file.Close()

	email, err := letters.ParseEmail(file)
	if err != nil {
		return "", fmt.Errorf("parse eml: %w", err)
	}

	var builder strings.Builder
	if email.Headers.Subject != "" {
		builder.WriteString(fmt.Sprintf("Subject: %s\n", email.Headers.Subject))
	}
	if len(email.Headers.From) > 0 {
		from := email.Headers.From[0]
		sender := from.Address
		if from.Name != "" {
			sender = fmt.Sprintf("%s <%s>", from.Name, from.Address)
		}
		builder.WriteString(fmt.Sprintf("Sender: %s\n", sender))
	}
	if !email.Headers.Date.IsZero() {
		builder.WriteString(fmt.Sprintf("Date: %s\n", email.Headers.Date.Format(time.RFC3339)))
	}
	builder.WriteString("\n")

	bodyText := email.Text
	if bodyText == "" && email.HTML != "" {
		stripped, err := stripHTML(strings.NewReader(email.HTML))
		if err != nil {
			logger.Warnf("extract: %s: HTML body did not parse, embedding raw markup: %v", filePath, err)
			stripped = email.HTML
		}
		bodyText = stripped
	}
	builder.WriteString(bodyText)

	result := strings.TrimSpace(builder.String())
	if result == "" {
		return "", fmt.Errorf("eml %s decoded to no content", filePath)
	}
	return result, nil
}
