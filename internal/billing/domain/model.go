package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidInvoice = errors.New("invalid_invoice")

type InvoiceStatus string

const (
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusFree    InvoiceStatus = "free"
	InvoiceStatusPending InvoiceStatus = "pending"
)

type PaymentStatus string

const (
	PaymentStatusPaid PaymentStatus = "paid"
)

// Payment methods accepted for staff-recorded fees and provider payments.
const (
	MethodCash         = "cash"
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodOnline       = "online"
)

func IsValidPaymentMethod(method string) bool {
	switch method {
	case MethodCash, MethodCard, MethodBankTransfer, MethodOnline:
		return true
	default:
		return false
	}
}

type Invoice struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID             snowflake.ID    `json:"org_id" gorm:"not null;index"`
	Number            string          `json:"number" gorm:"type:varchar(40);not null;uniqueIndex"`
	MembershipID      snowflake.ID    `json:"membership_id" gorm:"not null;index"`
	MemberID          snowflake.ID    `json:"member_id" gorm:"not null;index"`
	Total             decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`
	Currency          string          `json:"currency" gorm:"type:varchar(3);not null"`
	Status            InvoiceStatus   `json:"status" gorm:"type:varchar(16);not null"`
	DueAt             *time.Time      `json:"due_at"`
	PaidAt            *time.Time      `json:"paid_at"`
	ProviderInvoiceID *string         `json:"provider_invoice_id" gorm:"type:varchar(191);index"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// Payment is a settled provider payment. Reference is the canonical
// identifier the provider confirmed; at most one row exists per
// (org, provider, reference).
type Payment struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID             snowflake.ID    `json:"org_id" gorm:"not null;uniqueIndex:ux_payments_provider_reference,priority:1"`
	InvoiceID         snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	MembershipID      snowflake.ID    `json:"membership_id" gorm:"not null;index"`
	Provider          string          `json:"provider" gorm:"type:varchar(50);not null;uniqueIndex:ux_payments_provider_reference,priority:2"`
	Reference         string          `json:"reference" gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_provider_reference,priority:3"`
	ProviderPaymentID *string         `json:"provider_payment_id" gorm:"type:varchar(191);index"`
	ProviderInvoiceID *string         `json:"provider_invoice_id" gorm:"type:varchar(191);index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string          `json:"currency" gorm:"type:varchar(3);not null"`
	Method            string          `json:"method" gorm:"type:varchar(32);not null"`
	Status            PaymentStatus   `json:"status" gorm:"type:varchar(16);not null"`
	PaidAt            time.Time       `json:"paid_at" gorm:"not null"`
	RawVerification   datatypes.JSON  `json:"raw_verification"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// NewInvoiceNumber returns a sortable, human-quotable invoice number.
func NewInvoiceNumber(now time.Time) string {
	return "INV-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

type Repository interface {
	InsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	// FindPaidPayment matches any identifier against the reference and the
	// provider payment and invoice ids. A zero orgID searches every
	// organization; provider ids are unique per provider.
	FindPaidPayment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider string, identifiers []string) (*Payment, error)
	ListInvoicesByMembership(ctx context.Context, db *gorm.DB, orgID, membershipID snowflake.ID) ([]Invoice, error)
}
