package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat is the output format for command results.
type OutputFormat string

const (
	// FormatText is an aligned table (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON of the raw result.
	FormatJSON OutputFormat = "json"
	// FormatCSV is the table as CSV.
	FormatCSV OutputFormat = "csv"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or csv)", s)
	}
}

// Table is a tabular command result.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Append adds a row. Values are formatted with %v.
func (t *Table) Append(values ...any) {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprint(v)
	}
	t.Rows = append(t.Rows, row)
}

// Formatter writes command output.
type Formatter interface {
	// Write renders table, or raw for formats that encode the result
	// directly.
	Write(w io.Writer, table *Table, raw any) error
}

// TextFormatter writes an aligned table.
type TextFormatter struct{}

// Write implements Formatter.
func (TextFormatter) Write(w io.Writer, table *Table, _ any) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(table.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(table.Headers, "\t"))
	}
	for _, row := range table.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter writes raw as JSON.
type JSONFormatter struct {
	Indent bool
}

// Write implements Formatter.
func (f JSONFormatter) Write(w io.Writer, _ *Table, raw any) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(raw)
}

// CSVFormatter writes the table as CSV.
type CSVFormatter struct{}

// Write implements Formatter.
func (CSVFormatter) Write(w io.Writer, table *Table, _ any) error {
	cw := csv.NewWriter(w)
	if len(table.Headers) > 0 {
		if err := cw.Write(table.Headers); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// NewFormatter returns the formatter for format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return JSONFormatter{Indent: true}
	case FormatCSV:
		return CSVFormatter{}
	default:
		return TextFormatter{}
	}
}
