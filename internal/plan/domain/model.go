package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrPlanNotFound = errors.New("plan_not_found")

// Plan is the pricing and cycle template a membership is sold from. The
// membership engine only ever reads plans.
type Plan struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID           snowflake.ID    `json:"org_id" gorm:"not null;index"`
	Name            string          `json:"name" gorm:"type:varchar(191);not null"`
	Type            string          `json:"type" gorm:"type:varchar(50)"`
	Venue           string          `json:"venue" gorm:"type:varchar(191)"`
	Price           decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	PricePerSession decimal.Decimal `json:"price_per_session" gorm:"type:numeric(12,2);not null;default:0"`
	Currency        string          `json:"currency" gorm:"type:varchar(3);not null"`
	CycleDuration   *int            `json:"cycle_duration"`
	CycleUnit       *string         `json:"cycle_unit" gorm:"type:varchar(10)"`
	TotalQuota      *int            `json:"total_quota"`
	DailyQuota      *int            `json:"daily_quota"`
	Active          bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Plan, error)
}
