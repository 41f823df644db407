package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders datasets and reports into CSV bytes.
type CSVExporter struct {
	// Placeholder fills cells that have no value.
	Placeholder string
}

// NewCSVExporter builds a CSV exporter that marks empty cells with "-".
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{Placeholder: "-"}
}

// Render produces CSV encoded bytes for a single dataset, header row first.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := e.writeDataset(writer, data); err != nil {
		return nil, err
	}
	return flush(writer, buf)
}

// RenderReport stacks a report into one sheet: title and summary pairs, then every section
// as a title row, its headers and its rows. Blocks are separated by an empty line.
func (e *CSVExporter) RenderReport(report Report) ([]byte, error) {
	if len(report.Sections) == 0 {
		return nil, fmt.Errorf("csv report requires at least one section")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	preamble := false
	if report.Title != "" {
		if err := writer.Write([]string{report.Title}); err != nil {
			return nil, fmt.Errorf("write csv title: %w", err)
		}
		preamble = true
	}
	for _, kv := range report.Summary {
		if err := writer.Write([]string{kv.Key, e.cell(kv.Value)}); err != nil {
			return nil, fmt.Errorf("write csv summary: %w", err)
		}
		preamble = true
	}

	for i, section := range report.Sections {
		if i > 0 || preamble {
			if err := writer.Write([]string{}); err != nil {
				return nil, fmt.Errorf("write csv separator: %w", err)
			}
		}
		if section.Title != "" {
			if err := writer.Write([]string{section.Title}); err != nil {
				return nil, fmt.Errorf("write csv section title: %w", err)
			}
		}
		if err := e.writeDataset(writer, section.Dataset); err != nil {
			return nil, fmt.Errorf("section %q: %w", section.Title, err)
		}
	}
	return flush(writer, buf)
}

func (e *CSVExporter) writeDataset(writer *csv.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = e.cell(row[header])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	return nil
}

func (e *CSVExporter) cell(value string) string {
	if strings.TrimSpace(value) == "" {
		return e.Placeholder
	}
	return value
}

func flush(writer *csv.Writer, buf *bytes.Buffer) ([]byte, error) {
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
