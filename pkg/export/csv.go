// Package export serializes a completed batch to delimited text.
// It is a pure, stateless transform over the ordered result list and the
// batch statistics, with no feedback into the runner.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/result"
	"github.com/wehubfusion/Daedalus/pkg/scoring"
	"github.com/wehubfusion/Daedalus/pkg/stats"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Options controls the CSV layout
type Options struct {
	// Delimiter defaults to a comma
	Delimiter rune

	// HumanHeaders renders field headers in Title Case with underscores
	// replaced by spaces, for reports consumed directly by people
	HumanHeaders bool

	// IncludeStatistics appends the batch statistics block after the rows
	IncludeStatistics bool
}

// CSV writes one line per result: row number, status, every input field,
// every output field and the error text. Field columns are the sorted union
// of keys across the whole batch, so rows with heterogeneous keys still
// share a stable column set; missing values render as empty cells.
//
// rows and results must be parallel: results[i].RowIndex indexes into rows.
func CSV(w io.Writer, rows []scoring.Row, results []result.Result, statistics stats.BatchStatistics, opts Options) error {
	if len(results) == 0 {
		return fmt.Errorf("nothing to export: no results")
	}

	writer := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		writer.Comma = opts.Delimiter
	}

	inputFields := fieldUnion(rowMaps(rows))
	outputFields := fieldUnion(outputMaps(results))

	header := make([]string, 0, 3+len(inputFields)+len(outputFields))
	header = append(header, headerName("row", opts), headerName("status", opts))
	for _, field := range inputFields {
		header = append(header, headerName("input_"+field, opts))
	}
	for _, field := range outputFields {
		header = append(header, headerName("output_"+field, opts))
	}
	header = append(header, headerName("error", opts))
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, res := range results {
		record := make([]string, 0, len(header))
		record = append(record, fmt.Sprintf("%d", res.RowIndex+1), status(res))

		var row scoring.Row
		if res.RowIndex >= 0 && res.RowIndex < len(rows) {
			row = rows[res.RowIndex]
		}
		for _, field := range inputFields {
			record = append(record, cell(row, field))
		}
		for _, field := range outputFields {
			record = append(record, cell(res.Output, field))
		}
		record = append(record, res.Error)

		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", res.RowIndex, err)
		}
	}

	if opts.IncludeStatistics {
		if err := writeStatistics(writer, statistics, opts); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeStatistics appends the aggregate metrics as label/value pairs
func writeStatistics(writer *csv.Writer, statistics stats.BatchStatistics, opts Options) error {
	lines := [][2]string{
		{"total_runtime_ms", fmt.Sprintf("%.2f", statistics.TotalRuntimeMs)},
		{"avg_request_time_ms", fmt.Sprintf("%.2f", statistics.AvgRequestTimeMs)},
		{"fastest_response_ms", fmt.Sprintf("%.2f", statistics.FastestResponseMs)},
		{"slowest_response_ms", fmt.Sprintf("%.2f", statistics.SlowestResponseMs)},
		{"median_response_ms", fmt.Sprintf("%.2f", statistics.MedianResponseMs)},
		{"total_requests", fmt.Sprintf("%d", statistics.TotalRequests)},
		{"success_count", fmt.Sprintf("%d", statistics.SuccessCount)},
		{"error_count", fmt.Sprintf("%d", statistics.ErrorCount)},
		{"success_rate_percent", fmt.Sprintf("%.1f", statistics.SuccessRatePercent)},
	}

	if err := writer.Write([]string{}); err != nil {
		return fmt.Errorf("failed to write separator: %w", err)
	}
	for _, line := range lines {
		if err := writer.Write([]string{headerName(line[0], opts), line[1]}); err != nil {
			return fmt.Errorf("failed to write statistics: %w", err)
		}
	}
	return nil
}

// headerName renders a column header, optionally in human-readable form
func headerName(name string, opts Options) string {
	if !opts.HumanHeaders {
		return name
	}
	caser := cases.Title(language.English)
	return caser.String(strings.ReplaceAll(name, "_", " "))
}

func status(res result.Result) string {
	if res.Succeeded() {
		return statusSuccess
	}
	return statusError
}

// fieldUnion returns the sorted union of keys across all maps
func fieldUnion(maps []map[string]interface{}) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for key := range m {
			seen[key] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for key := range seen {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return fields
}

func rowMaps(rows []scoring.Row) []map[string]interface{} {
	maps := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		maps[i] = row
	}
	return maps
}

func outputMaps(results []result.Result) []map[string]interface{} {
	maps := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		if res.Output != nil {
			maps = append(maps, res.Output)
		}
	}
	return maps
}

// cell renders one value; missing keys and nil maps render as empty
func cell(m map[string]interface{}, field string) string {
	if m == nil {
		return ""
	}
	value, ok := m[field]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
