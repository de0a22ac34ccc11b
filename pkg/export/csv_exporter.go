package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is the tabular form of a mark sheet: one header per reported
// column (registration number, components, total, grade) and one row
// per student, keyed by header. Cells absent from a row render empty,
// so students missing a component still line up.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter writes mark-sheet datasets as CSV, the format lecturers
// pull into spreadsheets for moderation.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the mark sheet. Column order follows data.Headers.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("mark sheet needs at least one column")
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write mark sheet header: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write mark sheet row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush mark sheet: %w", err)
	}
	return buf.Bytes(), nil
}
