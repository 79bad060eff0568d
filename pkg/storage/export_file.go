package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/batch"
	"github.com/wehubfusion/Daedalus/pkg/export"
	"github.com/wehubfusion/Daedalus/pkg/scoring"
	"go.uber.org/zap"
)

// ExportManifest describes one uploaded batch export
type ExportManifest struct {
	BatchID       string    `json:"batch_id"`
	CSVURL        string    `json:"csv_url"`
	TotalRequests int       `json:"total_requests"`
	SuccessCount  int       `json:"success_count"`
	ErrorCount    int       `json:"error_count"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// ExportClient uploads completed batch reports to blob storage:
// a CSV with one line per result and a JSON manifest alongside it.
type ExportClient struct {
	blobClient BlobStorageClient
	logger     *zap.Logger
}

// NewExportClient creates an export client over the given blob storage
func NewExportClient(blobClient BlobStorageClient, logger *zap.Logger) (*ExportClient, error) {
	if blobClient == nil {
		return nil, fmt.Errorf("blob client is required")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &ExportClient{
		blobClient: blobClient,
		logger:     logger,
	}, nil
}

// CSVPath returns the standard blob path for a batch's CSV export
func CSVPath(batchID string) string {
	return fmt.Sprintf("exports/%s/results.csv", batchID)
}

// ManifestPath returns the standard blob path for a batch's manifest
func ManifestPath(batchID string) string {
	return fmt.Sprintf("exports/%s/manifest.json", batchID)
}

// UploadReport serializes the report to CSV, uploads it together with a
// manifest and returns the manifest
func (c *ExportClient) UploadReport(ctx context.Context, rows []scoring.Row, report *batch.Report, opts export.Options) (*ExportManifest, error) {
	if report == nil {
		return nil, fmt.Errorf("report is required")
	}

	var buf bytes.Buffer
	if err := export.CSV(&buf, rows, report.Results, report.Statistics, opts); err != nil {
		return nil, fmt.Errorf("failed to serialize export: %w", err)
	}

	csvURL, err := c.blobClient.Upload(ctx, CSVPath(report.BatchID), buf.Bytes(), "text/csv", map[string]string{
		"batch_id":       report.BatchID,
		"total_requests": fmt.Sprintf("%d", report.Statistics.TotalRequests),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload CSV export: %w", err)
	}

	manifest := &ExportManifest{
		BatchID:       report.BatchID,
		CSVURL:        csvURL,
		TotalRequests: report.Statistics.TotalRequests,
		SuccessCount:  report.Statistics.SuccessCount,
		ErrorCount:    report.Statistics.ErrorCount,
		UploadedAt:    time.Now().UTC(),
	}

	manifestData, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if _, err := c.blobClient.Upload(ctx, ManifestPath(report.BatchID), manifestData, "application/json", nil); err != nil {
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}

	c.logger.Info("Batch export uploaded",
		zap.String("batch_id", report.BatchID),
		zap.String("csv_url", csvURL),
		zap.Int("total_requests", manifest.TotalRequests))

	return manifest, nil
}

// GetManifest downloads and parses a batch's export manifest
func (c *ExportClient) GetManifest(ctx context.Context, batchID string) (*ExportManifest, error) {
	data, err := c.blobClient.Download(ctx, ManifestPath(batchID))
	if err != nil {
		return nil, fmt.Errorf("failed to download manifest: %w", err)
	}
	var manifest ExportManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
