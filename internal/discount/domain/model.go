package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Unit string

const (
	UnitPercent Unit = "percent"
	UnitFixed   Unit = "fixed"
)

type Discount struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID     snowflake.ID    `json:"org_id" gorm:"not null;index"`
	Code      string          `json:"code" gorm:"type:varchar(64)"`
	Value     decimal.Decimal `json:"value" gorm:"type:numeric(12,2);not null"`
	Unit      Unit            `json:"unit" gorm:"type:varchar(10);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"not null"`
}

func (Discount) TableName() string { return "discounts" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Discount, error)
}
