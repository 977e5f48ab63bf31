package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	"github.com/gymstack/gymstack/internal/calendar"
)

const maxExportRange = 90 * 24 * time.Hour

// ExportNotes handles GET /api/notes/export
func (s *Server) ExportNotes(c *gin.Context) {
	startDate, err := time.Parse(calendar.DateLayout, strings.TrimSpace(c.Query("start_date")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	endDate, err := time.Parse(calendar.DateLayout, strings.TrimSpace(c.Query("end_date")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	// end_date is inclusive
	endDate = endDate.Add(24 * time.Hour)
	if !endDate.After(startDate) || endDate.Sub(startDate) > maxExportRange {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var format auditdomain.ExportFormat
	switch strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv"))) {
	case "csv":
		format = auditdomain.ExportFormatCSV
	case "json":
		format = auditdomain.ExportFormatJSON
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var categories []auditdomain.Category
	if raw := strings.TrimSpace(c.Query("categories")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				categories = append(categories, auditdomain.Category(part))
			}
		}
	}

	result, err := s.auditExportSvc.Export(c.Request.Context(), auditdomain.ExportRequest{
		StartDate:  startDate,
		EndDate:    endDate,
		Format:     format,
		Categories: categories,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	contentType := "text/csv"
	if format == auditdomain.ExportFormatJSON {
		contentType = "application/json"
	}
	filename := fmt.Sprintf("membership-notes-%s-%s.%s", startDate.Format("20060102"), endDate.AddDate(0, 0, -1).Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Export-Checksum", result.Checksum)
	c.Header("X-Export-Count", strconv.Itoa(result.Count))
	c.Data(http.StatusOK, contentType, result.Data)
}
