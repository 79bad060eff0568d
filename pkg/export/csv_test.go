package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/wehubfusion/Daedalus/pkg/result"
	"github.com/wehubfusion/Daedalus/pkg/scoring"
	"github.com/wehubfusion/Daedalus/pkg/stats"
)

func sampleBatch() ([]scoring.Row, []result.Result, stats.BatchStatistics) {
	rows := []scoring.Row{
		{"customer": "alice", "amount": 120},
		{"customer": "bob", "amount": 75, "region": "eu"},
		{"customer": "carol", "amount": 310},
	}
	results := []result.Result{
		{RowIndex: 0, Output: map[string]interface{}{"score": 0.91}, ExecutionTimeMs: 12},
		{RowIndex: 1, Error: "connection refused", ExecutionTimeMs: 8},
		{RowIndex: 2, Output: map[string]interface{}{"score": 0.42, "tier": "low"}, ExecutionTimeMs: 15},
	}
	statistics := stats.Aggregate(results)
	statistics.TotalRuntimeMs = 40
	return rows, results, statistics
}

func parseCSV(t *testing.T, data string) [][]string {
	t.Helper()
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("failed to parse exported CSV: %v", err)
	}
	return records
}

func TestCSVColumnsAreStableUnion(t *testing.T) {
	rows, results, statistics := sampleBatch()

	var buf bytes.Buffer
	if err := CSV(&buf, rows, results, statistics, Options{}); err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	records := parseCSV(t, buf.String())
	header := records[0]
	expected := []string{"row", "status", "input_amount", "input_customer", "input_region", "output_score", "output_tier", "error"}
	if len(header) != len(expected) {
		t.Fatalf("expected %d columns, got %d: %v", len(expected), len(header), header)
	}
	for i, name := range expected {
		if header[i] != name {
			t.Fatalf("column %d: expected %q, got %q", i, name, header[i])
		}
	}

	for i, record := range records[1:] {
		if len(record) != len(header) {
			t.Fatalf("record %d has %d cells, header has %d", i, len(record), len(header))
		}
	}
}

func TestCSVRowContents(t *testing.T) {
	rows, results, statistics := sampleBatch()

	var buf bytes.Buffer
	if err := CSV(&buf, rows, results, statistics, Options{}); err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	records := parseCSV(t, buf.String())

	// header: row, status, input_amount, input_customer, input_region, output_score, output_tier, error
	first := records[1]
	if first[0] != "1" || first[1] != "success" {
		t.Fatalf("unexpected first record prefix: %v", first)
	}
	if first[3] != "alice" || first[5] != "0.91" {
		t.Fatalf("unexpected first record values: %v", first)
	}
	if first[4] != "" {
		t.Fatalf("missing input field should render empty, got %q", first[4])
	}

	failed := records[2]
	if failed[1] != "error" {
		t.Fatalf("failed row should carry error status: %v", failed)
	}
	if failed[5] != "" || failed[6] != "" {
		t.Fatalf("failed row must have empty output cells: %v", failed)
	}
	if failed[7] != "connection refused" {
		t.Fatalf("failed row should carry the error text: %v", failed)
	}

	third := records[3]
	if third[6] != "low" {
		t.Fatalf("expected tier cell on third record: %v", third)
	}
	if third[7] != "" {
		t.Fatalf("successful row must have empty error cell: %v", third)
	}
}

func TestCSVHumanHeaders(t *testing.T) {
	rows, results, statistics := sampleBatch()

	var buf bytes.Buffer
	if err := CSV(&buf, rows, results, statistics, Options{HumanHeaders: true}); err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	header := parseCSV(t, buf.String())[0]

	if header[0] != "Row" || header[1] != "Status" {
		t.Fatalf("unexpected human headers: %v", header)
	}
	if header[3] != "Input Customer" {
		t.Fatalf("expected 'Input Customer', got %q", header[3])
	}
}

func TestCSVIncludesStatisticsBlock(t *testing.T) {
	rows, results, statistics := sampleBatch()

	var buf bytes.Buffer
	if err := CSV(&buf, rows, results, statistics, Options{IncludeStatistics: true}); err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	out := buf.String()
	for _, label := range []string{"total_runtime_ms", "median_response_ms", "success_rate_percent"} {
		if !strings.Contains(out, label) {
			t.Fatalf("statistics block missing %q:\n%s", label, out)
		}
	}
	if !strings.Contains(out, "total_requests,3") {
		t.Fatalf("statistics block should report 3 requests:\n%s", out)
	}
}

func TestCSVCustomDelimiter(t *testing.T) {
	rows, results, statistics := sampleBatch()

	var buf bytes.Buffer
	if err := CSV(&buf, rows, results, statistics, Options{Delimiter: ';'}); err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	firstLine := strings.SplitN(buf.String(), "\n", 2)[0]
	if !strings.Contains(firstLine, "row;status") {
		t.Fatalf("expected semicolon delimiter: %q", firstLine)
	}
}

func TestCSVRejectsEmptyResults(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, nil, nil, stats.BatchStatistics{}, Options{}); err == nil {
		t.Fatal("expected error for empty result list")
	}
}
