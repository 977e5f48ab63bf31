package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CallbackRequest carries whatever identifiers the provider echoed back.
type CallbackRequest struct {
	PaymentID string
	InvoiceID string
}

type OutcomeKind string

const (
	OutcomeCreated             OutcomeKind = "created"
	OutcomeAlreadyProcessed    OutcomeKind = "already_processed"
	OutcomeNotPaid             OutcomeKind = "not_paid"
	OutcomeExpired             OutcomeKind = "expired"
	OutcomeUpstreamUnavailable OutcomeKind = "upstream_unavailable"
	OutcomeNotFound            OutcomeKind = "not_found"
	OutcomeInvalid             OutcomeKind = "invalid"
	OutcomeFailed              OutcomeKind = "failed"
)

// Outcome is what the payer is redirected with. Reference is the payment or
// invoice identifier support can trace the transaction by.
type Outcome struct {
	Kind         OutcomeKind
	Message      string
	Reference    string
	MembershipID snowflake.ID
}

func (o Outcome) Success() bool {
	return o.Kind == OutcomeCreated || o.Kind == OutcomeAlreadyProcessed
}

type CallbackGateway interface {
	HandleCallback(ctx context.Context, req CallbackRequest) Outcome
}

type CheckoutRequest struct {
	MemberID       string `validate:"required"`
	PlanID         string `validate:"required"`
	DiscountMode   string `validate:"omitempty,oneof=none auto manual"`
	DiscountID     string
	ManualDiscount *decimal.Decimal
	StartDate      string `validate:"omitempty,datetime=2006-01-02"`
	SoldBy         string
}

type CheckoutSession struct {
	InvoiceID   string          `json:"invoice_id"`
	CheckoutURL string          `json:"checkout_url"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ExpiresAt   string          `json:"expires_at"`
}

type CheckoutService interface {
	Start(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCheckout     = errors.New("invalid_checkout")
	// ErrNothingToPay is returned for free purchases, which are created
	// directly instead of through a hosted payment.
	ErrNothingToPay = errors.New("nothing_to_pay")
)
