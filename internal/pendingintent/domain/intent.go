package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"github.com/shopspring/decimal"
)

// KeyPrefix namespaces pending intents in shared key spaces.
const KeyPrefix = "payment_pending_"

var (
	ErrInvalidIntent = errors.New("invalid_pending_intent")
	ErrStoreFailure  = errors.New("pending_intent_store_failure")
)

// Intent is everything needed to create a membership once the payment that
// was staged for it is confirmed.
type Intent struct {
	OrgID    snowflake.ID `json:"org_id,string"`
	MemberID string       `json:"member_id"`
	PlanID   string       `json:"plan_id"`

	DiscountMode   string           `json:"discount_mode,omitempty"`
	DiscountID     string           `json:"discount_id,omitempty"`
	ManualDiscount *decimal.Decimal `json:"manual_discount,omitempty"`
	StartDate      string           `json:"start_date,omitempty"`
	SoldBy         string           `json:"sold_by,omitempty"`

	InvoiceID string          `json:"invoice_id,omitempty"`
	PaymentID string          `json:"payment_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func Key(identifier string) string {
	return KeyPrefix + identifier
}

func (i Intent) Validate() error {
	if i.OrgID == 0 || strings.TrimSpace(i.MemberID) == "" || strings.TrimSpace(i.PlanID) == "" {
		return ErrInvalidIntent
	}
	return nil
}

func (i Intent) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// Identifiers are the keys the intent is staged under.
func (i Intent) Identifiers() []string {
	var out []string
	for _, id := range []string{i.InvoiceID, i.PaymentID} {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Matches reports whether any embedded identifier equals one of ids.
func (i Intent) Matches(ids ...string) bool {
	for _, own := range i.Identifiers() {
		for _, id := range ids {
			if id != "" && own == id {
				return true
			}
		}
	}
	return false
}

func (i Intent) CreateRequest(method, receipt, note string) membershipdomain.CreateRequest {
	paid := i.Amount
	return membershipdomain.CreateRequest{
		MemberID:         i.MemberID,
		PlanID:           i.PlanID,
		DiscountMode:     i.DiscountMode,
		DiscountID:       i.DiscountID,
		ManualDiscount:   i.ManualDiscount,
		StartDate:        i.StartDate,
		InvoiceStatus:    "paid",
		InvoiceTotalPaid: &paid,
		InvoiceMethod:    method,
		InvoiceReceipt:   receipt,
		SoldBy:           i.SoldBy,
		Note:             note,
	}
}

// Store holds pending intents by identifier. Get returns nil, nil when the
// identifier is unknown or its entry has lapsed.
type Store interface {
	Name() string
	Get(ctx context.Context, identifier string) (*Intent, error)
	Put(ctx context.Context, identifier string, intent Intent, ttl time.Duration) error
	Delete(ctx context.Context, identifiers ...string) error
	// Scan returns the first intent match accepts.
	Scan(ctx context.Context, match func(Intent) bool) (*Intent, error)
}
