package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	"github.com/gymstack/gymstack/internal/orgcontext"
	"gorm.io/gorm"
)

type ExportService struct {
	db   *gorm.DB
	repo auditdomain.Repository
}

func NewExportService(db *gorm.DB, repo auditdomain.Repository) auditdomain.ExportService {
	return &ExportService{db: db, repo: repo}
}

func (s *ExportService) Export(ctx context.Context, req auditdomain.ExportRequest) (*auditdomain.ExportResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}

	notes, err := s.repo.ListRange(ctx, s.db, orgID, req.StartDate, req.EndDate, req.Categories)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch req.Format {
	case auditdomain.ExportFormatCSV:
		data, err = formatCSV(notes)
	case auditdomain.ExportFormatJSON:
		data, err = formatJSON(notes)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", req.Format)
	}
	if err != nil {
		return nil, err
	}

	return &auditdomain.ExportResult{
		Data:     data,
		Checksum: calculateChecksum(data),
		Format:   req.Format,
		Count:    len(notes),
	}, nil
}

func formatCSV(notes []auditdomain.Note) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "subject_type", "subject_id", "category", "author_id", "title", "body"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, note := range notes {
		row := []string{
			note.CreatedAt.Format(time.RFC3339),
			note.SubjectType,
			note.SubjectID.String(),
			string(note.Category),
			formatSnowflakeID(note.AuthorID),
			note.Title,
			note.Body,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatJSON(notes []auditdomain.Note) ([]byte, error) {
	type exportRecord struct {
		Timestamp   string `json:"timestamp"`
		SubjectType string `json:"subject_type"`
		SubjectID   string `json:"subject_id"`
		Category    string `json:"category"`
		AuthorID    string `json:"author_id,omitempty"`
		Title       string `json:"title"`
		Body        string `json:"body,omitempty"`
	}

	records := make([]exportRecord, 0, len(notes))
	for _, note := range notes {
		records = append(records, exportRecord{
			Timestamp:   note.CreatedAt.Format(time.RFC3339),
			SubjectType: note.SubjectType,
			SubjectID:   note.SubjectID.String(),
			Category:    string(note.Category),
			AuthorID:    formatSnowflakeID(note.AuthorID),
			Title:       note.Title,
			Body:        note.Body,
		})
	}
	return json.MarshalIndent(records, "", "  ")
}

func formatSnowflakeID(id *snowflake.ID) string {
	if id == nil || *id == 0 {
		return ""
	}
	return id.String()
}

func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
