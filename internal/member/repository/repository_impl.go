package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gymstack/gymstack/internal/member/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Member, error) {
	return r.find(db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Member, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) find(db *gorm.DB, orgID, id snowflake.ID) (*domain.Member, error) {
	var m domain.Member
	if err := db.Where("org_id = ? AND id = ?", orgID, id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *repo) FindByContact(ctx context.Context, db *gorm.DB, orgID snowflake.ID, email, phone string) (*domain.Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return nil, nil
	}

	q := db.WithContext(ctx).Where("org_id = ? AND is_deleted = ?", orgID, false)
	switch {
	case email != "" && phone != "":
		q = q.Where("(LOWER(email) = ? OR phone = ?)", email, phone)
	case email != "":
		q = q.Where("LOWER(email) = ?", email)
	default:
		q = q.Where("phone = ?", phone)
	}

	var m domain.Member
	if err := q.Order("created_at ASC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
