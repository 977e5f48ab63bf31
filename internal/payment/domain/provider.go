//go:generate mockgen -destination=mock/verifier.go -package=mock github.com/gymstack/gymstack/internal/payment/domain Verifier

package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidIdentifier = errors.New("invalid_payment_identifier")
	// ErrProviderUnavailable covers transport failures, timeouts and 5xx
	// answers. The payment may well be paid; the caller should retry.
	ErrProviderUnavailable = errors.New("payment_provider_unavailable")
	// ErrProviderRejected is any other non-2xx answer or an unsuccessful
	// envelope.
	ErrProviderRejected = errors.New("payment_provider_rejected")
	ErrInvalidResponse  = errors.New("payment_provider_invalid_response")
)

type IdentifierType string

const (
	IdentifierPaymentID IdentifierType = "PaymentId"
	IdentifierInvoiceID IdentifierType = "InvoiceId"
)

// Verification is the provider's view of a payment. OrgID, PlanID and the
// customer fields come from metadata attached at checkout and may be empty.
type Verification struct {
	Provider  string
	Status    string
	PaymentID string
	InvoiceID string
	Amount    decimal.Decimal
	Currency  string
	Method    string
	PaidAt    *time.Time

	OrgID         string
	PlanID        string
	MemberID      string
	CustomerEmail string
	CustomerPhone string

	Raw json.RawMessage
}

func (v Verification) IsPaid() bool {
	switch strings.ToLower(strings.TrimSpace(v.Status)) {
	case "paid", "settled", "succeeded", "success", "completed":
		return true
	default:
		return false
	}
}

type Verifier interface {
	Provider() string
	Verify(ctx context.Context, identifier string, kind IdentifierType) (*Verification, error)
}

type InvoiceRequest struct {
	ExternalID  string
	Amount      decimal.Decimal
	Currency    string
	Description string
	PayerEmail  string
	SuccessURL  string
	FailureURL  string
	Metadata    map[string]string
}

type ProviderInvoice struct {
	ID        string
	URL       string
	ExpiresAt *time.Time
}

// InvoiceIssuer opens a hosted payment page for an amount.
type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*ProviderInvoice, error)
}
