package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() auditdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, note *auditdomain.Note) error {
	return db.WithContext(ctx).Create(note).Error
}

func (r *repo) ListBySubject(ctx context.Context, db *gorm.DB, orgID snowflake.ID, subjectType string, subjectID snowflake.ID) ([]auditdomain.Note, error) {
	var items []auditdomain.Note
	if err := db.WithContext(ctx).
		Where("org_id = ? AND subject_type = ? AND subject_id = ?", orgID, subjectType, subjectID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRange(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, to time.Time, categories []auditdomain.Category) ([]auditdomain.Note, error) {
	query := db.WithContext(ctx).
		Where("org_id = ? AND created_at >= ? AND created_at < ?", orgID, from, to)
	if len(categories) > 0 {
		query = query.Where("category IN ?", categories)
	}

	var items []auditdomain.Note
	if err := query.Order("created_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
