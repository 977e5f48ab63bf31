package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrMemberNotFound = errors.New("member_not_found")

// Member is a subscriber of an organization.
type Member struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID      snowflake.ID `json:"org_id" gorm:"not null;index"`
	Name       string       `json:"name" gorm:"type:varchar(191);not null"`
	Email      string       `json:"email" gorm:"type:varchar(191);index"`
	Phone      string       `json:"phone" gorm:"type:varchar(32);index"`
	ArchivedAt *time.Time   `json:"archived_at"`
	IsDeleted  bool         `json:"is_deleted" gorm:"not null;default:false"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Member) TableName() string { return "members" }

func (m *Member) IsArchived() bool {
	return m.ArchivedAt != nil || m.IsDeleted
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Member, error)
	// FindByIDForUpdate row-locks the member for the rest of the transaction.
	// Creation paths lock the subscriber before checking for live memberships.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Member, error)
	FindByContact(ctx context.Context, db *gorm.DB, orgID snowflake.ID, email, phone string) (*Member, error)
}
