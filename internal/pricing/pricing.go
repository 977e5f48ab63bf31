// Package pricing turns a plan base price and a discount selection into the
// invoice total of a membership. Currency is inherited and never converted.
package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	discountdomain "github.com/gymstack/gymstack/internal/discount/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidDiscountMode    = errors.New("invalid_discount_mode")
	ErrNegativeManualDiscount = errors.New("negative_manual_discount")
)

type DiscountMode string

const (
	DiscountModeNone   DiscountMode = "none"
	DiscountModeAuto   DiscountMode = "auto"
	DiscountModeManual DiscountMode = "manual"
)

var hundred = decimal.NewFromInt(100)

func ParseDiscountMode(value string) (DiscountMode, error) {
	switch DiscountMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", DiscountModeNone:
		return DiscountModeNone, nil
	case DiscountModeAuto:
		return DiscountModeAuto, nil
	case DiscountModeManual:
		return DiscountModeManual, nil
	default:
		return "", ErrInvalidDiscountMode
	}
}

// ComputeInvoiceTotal applies a resolved discount (auto mode) or a manual
// amount (manual mode) to base. An unresolved discount or a nil or
// negative manual amount means no discount. The result is never negative.
func ComputeInvoiceTotal(base decimal.Decimal, mode DiscountMode, discount *discountdomain.Discount, manualAmount *decimal.Decimal) decimal.Decimal {
	total := base
	switch mode {
	case DiscountModeAuto:
		if discount == nil {
			break
		}
		switch discount.Unit {
		case discountdomain.UnitPercent:
			total = base.Mul(decimal.NewFromInt(1).Sub(discount.Value.Div(hundred)))
		case discountdomain.UnitFixed:
			total = base.Sub(discount.Value)
		}
	case DiscountModeManual:
		if manualAmount != nil && !manualAmount.IsNegative() {
			total = base.Sub(*manualAmount)
		}
	}

	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}

// Quote is a priced invoice plus the discount snapshot to store with it.
type Quote struct {
	Base          decimal.Decimal
	Total         decimal.Decimal
	DiscountID    *snowflake.ID
	DiscountValue *decimal.Decimal
	DiscountUnit  *discountdomain.Unit
}

type Calculator struct {
	discounts discountdomain.Repository
}

func NewCalculator(discounts discountdomain.Repository) *Calculator {
	return &Calculator{discounts: discounts}
}

type QuoteRequest struct {
	OrgID          snowflake.ID
	Base           decimal.Decimal
	Mode           DiscountMode
	DiscountID     *snowflake.ID
	ManualDiscount *decimal.Decimal
}

func (c *Calculator) Quote(ctx context.Context, db *gorm.DB, req QuoteRequest) (Quote, error) {
	q := Quote{Base: req.Base}

	var resolved *discountdomain.Discount
	switch req.Mode {
	case DiscountModeAuto:
		if req.DiscountID != nil && c.discounts != nil {
			d, err := c.discounts.FindByID(ctx, db, req.OrgID, *req.DiscountID)
			if err != nil {
				return Quote{}, err
			}
			resolved = d
		}
		if resolved != nil {
			id, value, unit := resolved.ID, resolved.Value, resolved.Unit
			q.DiscountID, q.DiscountValue, q.DiscountUnit = &id, &value, &unit
		}
	case DiscountModeManual:
		if req.ManualDiscount != nil && req.ManualDiscount.IsNegative() {
			return Quote{}, ErrNegativeManualDiscount
		}
		if req.ManualDiscount != nil {
			value, unit := *req.ManualDiscount, discountdomain.UnitFixed
			q.DiscountValue, q.DiscountUnit = &value, &unit
		}
	case DiscountModeNone, "":
	default:
		return Quote{}, ErrInvalidDiscountMode
	}

	q.Total = ComputeInvoiceTotal(req.Base, req.Mode, resolved, req.ManualDiscount)
	return q, nil
}
