package domain

import (
	"context"
	"time"
)

// ExportFormat represents the output format for note exports.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ExportRequest defines parameters for a note history export.
type ExportRequest struct {
	StartDate  time.Time
	EndDate    time.Time
	Format     ExportFormat
	Categories []Category // Optional filter
}

// ExportResult contains the exported data and metadata.
type ExportResult struct {
	Data     []byte
	Checksum string
	Format   ExportFormat
	Count    int
}

type ExportService interface {
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}
