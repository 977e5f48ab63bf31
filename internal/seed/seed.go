// Package seed creates a demo gym for local development: one organization
// with a small plan catalog, a discount and a few members.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	discountdomain "github.com/gymstack/gymstack/internal/discount/domain"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	organizationdomain "github.com/gymstack/gymstack/internal/organization/domain"
	plandomain "github.com/gymstack/gymstack/internal/plan/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Options struct {
	OrgID    snowflake.ID
	Name     string
	Timezone string
	Currency string
}

type Result struct {
	Organization organizationdomain.Organization
	Plans        []plandomain.Plan
	Members      []memberdomain.Member
	Discount     discountdomain.Discount
}

// EnsureDemoGym is idempotent: rows that already exist are left untouched.
func EnsureDemoGym(ctx context.Context, db *gorm.DB, node *snowflake.Node, opts Options) (*Result, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}
	if node == nil {
		return nil, errors.New("seed id generator is required")
	}
	if opts.OrgID == 0 {
		opts.OrgID = node.Generate()
	}
	if opts.Name == "" {
		opts.Name = "Demo Gym"
	}
	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}

	now := time.Now().UTC()
	res := &Result{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res.Organization = organizationdomain.Organization{
			ID:        opts.OrgID,
			Name:      opts.Name,
			Timezone:  opts.Timezone,
			Currency:  opts.Currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := insertIgnore(tx, &res.Organization); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&plandomain.Plan{}).Where("org_id = ?", opts.OrgID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		res.Plans = demoPlans(node, opts, now)
		if err := tx.Create(&res.Plans).Error; err != nil {
			return err
		}

		res.Discount = discountdomain.Discount{
			ID:        node.Generate(),
			OrgID:     opts.OrgID,
			Code:      "WELCOME10",
			Value:     decimal.NewFromInt(10),
			Unit:      discountdomain.UnitPercent,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&res.Discount).Error; err != nil {
			return err
		}

		res.Members = []memberdomain.Member{
			{ID: node.Generate(), OrgID: opts.OrgID, Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+15550100", CreatedAt: now, UpdatedAt: now},
			{ID: node.Generate(), OrgID: opts.OrgID, Name: "Grace Hopper", Email: "grace@example.com", Phone: "+15550101", CreatedAt: now, UpdatedAt: now},
		}
		return tx.Create(&res.Members).Error
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func demoPlans(node *snowflake.Node, opts Options, now time.Time) []plandomain.Plan {
	month, week := "month", "week"
	one, two := 1, 2
	twelve := 12
	quota := 20

	return []plandomain.Plan{
		{ID: node.Generate(), OrgID: opts.OrgID, Name: "Monthly Unlimited", Type: "membership", Price: decimal.NewFromInt(100),
			Currency: opts.Currency, CycleDuration: &one, CycleUnit: &month, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), OrgID: opts.OrgID, Name: "Annual", Type: "membership", Price: decimal.NewFromInt(1000),
			Currency: opts.Currency, CycleDuration: &twelve, CycleUnit: &month, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), OrgID: opts.OrgID, Name: "20 Class Pack", Type: "class_pack", Price: decimal.NewFromInt(180),
			PricePerSession: decimal.NewFromInt(9), Currency: opts.Currency, CycleDuration: &one, CycleUnit: &month,
			TotalQuota: &quota, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), OrgID: opts.OrgID, Name: "Two Week Trial", Type: "trial", Price: decimal.Zero,
			Currency: opts.Currency, CycleDuration: &two, CycleUnit: &week, Active: true, CreatedAt: now, UpdatedAt: now},
	}
}

func insertIgnore(tx *gorm.DB, value any) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(value).Error
}
