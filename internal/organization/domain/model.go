package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrOrganizationNotFound = errors.New("organization_not_found")

type Organization struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name      string       `json:"name" gorm:"type:varchar(191);not null"`
	Timezone  string       `json:"timezone" gorm:"type:varchar(64)"`
	Currency  string       `json:"currency" gorm:"type:varchar(3)"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Organization) TableName() string { return "organizations" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
}
