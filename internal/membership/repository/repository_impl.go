package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() membershipdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *membershipdomain.Membership) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, item *membershipdomain.Membership) error {
	return db.WithContext(ctx).Save(item).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*membershipdomain.Membership, error) {
	var item membershipdomain.Membership
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*membershipdomain.Membership, error) {
	var item membershipdomain.Membership
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindLive(ctx context.Context, db *gorm.DB, orgID, memberID, planID snowflake.ID) (*membershipdomain.Membership, error) {
	var item membershipdomain.Membership
	err := db.WithContext(ctx).
		Where("org_id = ? AND member_id = ? AND plan_id = ?", orgID, memberID, planID).
		Where("status IN ? AND is_canceled = ? AND is_deleted = ?", membershipdomain.LiveStatuses, false, false).
		Order("id ASC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListByMember(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) ([]membershipdomain.Membership, error) {
	var items []membershipdomain.Membership
	if err := db.WithContext(ctx).
		Where("org_id = ? AND member_id = ? AND is_deleted = ?", orgID, memberID, false).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSweepCandidates(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]membershipdomain.Membership, error) {
	statuses := []membershipdomain.Status{
		membershipdomain.StatusUpcoming,
		membershipdomain.StatusActive,
		membershipdomain.StatusHold,
	}

	var items []membershipdomain.Membership
	if err := db.WithContext(ctx).
		Where("id > ? AND status IN ? AND is_canceled = ? AND is_deleted = ?", afterID, statuses, false, false).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
