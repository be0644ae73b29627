// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extract

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nskitch/atlas/internal/logger"
)

// parseExcel renders a workbook to text by "markdownifying" each sheet: one
// header line naming the sheet, then one line per data row spelling out
// `header: value` pairs so a keyword search over the fulltext tier (§4.J)
// can still match on a column header plus its cell value. The header row
// itself supplies the field names and is not emitted as data.
func parseExcel(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("xlsx %s has no sheets", filePath)
	}

	var builder strings.Builder
	for sheetIdx, sheetName := range sheets {
		if sheetIdx > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			logger.Debugf("extract: %s: sheet %q unreadable, skipping: %v", filePath, sheetName, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}

		headers := rows[0]
		if len(headers) == 0 {
			continue
		}

		for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
			row := rows[rowIdx]
			var cells []string
			for colIdx, header := range headers {
				if colIdx >= len(row) {
					continue
				}
				value := strings.TrimSpace(row[colIdx])
				if value == "" {
					continue
				}
				name := strings.TrimSpace(header)
				if name == "" {
					name = fmt.Sprintf("Column %d", colIdx+1)
				}
				cells = append(cells, fmt.Sprintf("%s: %s", name, value))
			}
			if len(cells) > 0 {
				builder.WriteString(fmt.Sprintf("Row %d: %s\n", rowIdx+1, strings.Join(cells, ", ")))
			}
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("xlsx %s decoded to no content", filePath)
	}
	return text, nil
}
