package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines one tabular section of a report.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// SummaryRow is a labeled headline value shown before the tables.
type SummaryRow struct {
	Label string
	Value string
}

// Section pairs a heading with its table.
type Section struct {
	Heading string
	Data    Dataset
}

// Report bundles a title, a headline summary and tabular sections.
type Report struct {
	Title    string
	Summary  []SummaryRow
	Sections []Section
}

// CSVExporter renders reports into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes: title and summary rows first, then each
// section as heading, header row and data rows separated by a blank line.
func (e *CSVExporter) Render(report Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if report.Title != "" {
		if err := writer.Write([]string{report.Title}); err != nil {
			return nil, fmt.Errorf("write csv title: %w", err)
		}
	}
	for _, row := range report.Summary {
		if err := writer.Write([]string{row.Label, row.Value}); err != nil {
			return nil, fmt.Errorf("write csv summary: %w", err)
		}
	}
	for _, section := range report.Sections {
		if len(section.Data.Headers) == 0 {
			return nil, fmt.Errorf("csv section %q requires at least one header", section.Heading)
		}
		if err := writer.Write([]string{""}); err != nil {
			return nil, fmt.Errorf("write csv separator: %w", err)
		}
		if section.Heading != "" {
			if err := writer.Write([]string{section.Heading}); err != nil {
				return nil, fmt.Errorf("write csv heading: %w", err)
			}
		}
		if err := writer.Write(section.Data.Headers); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		for _, row := range section.Data.Rows {
			record := make([]string, len(section.Data.Headers))
			for i, header := range section.Data.Headers {
				record[i] = row[header]
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
