package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// Report is a titled table of strings.
type Report struct {
	Headers []string
	Rows    [][]string
}

// Records returns one map per row keyed by the lower-cased header.
// Missing cells are empty strings.
func (r *Report) Records() []map[string]string {
	records := make([]map[string]string, 0, len(r.Rows))

	for _, row := range r.Rows {
		rec := make(map[string]string, len(r.Headers))

		for i, h := range r.Headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}

			rec[strings.ToLower(h)] = cell
		}

		records = append(records, rec)
	}

	return records
}

// RenderTable writes r as a bordered text table.
func RenderTable(w io.Writer, r *Report) error {
	columns := len(r.Headers)
	if columns == 0 {
		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range r.Headers {
		header[i] = h
	}

	tw.AppendHeader(header)

	for _, row := range r.Rows {
		tr := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				tr[i] = row[i]
			} else {
				tr[i] = ""
			}
		}

		tw.AppendRow(tr)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignLeft,
		})
	}

	tw.SetColumnConfigs(configs)

	if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}

	return nil
}

// RenderJSON writes r as an indented JSON array of records.
func RenderJSON(w io.Writer, r *Report) error {
	data, err := json.MarshalIndent(r.Records(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}

// RenderYAML writes r as a YAML sequence of records.
func RenderYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(r.Records()); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	return enc.Close()
}
