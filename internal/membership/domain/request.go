package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Dates in requests are organization-local calendar dates (YYYY-MM-DD).

type CreateRequest struct {
	MemberID string `validate:"required"`
	PlanID   string `validate:"required"`
	// Price is ignored. The plan price is authoritative.
	Price *decimal.Decimal

	DiscountMode   string `validate:"omitempty,oneof=none auto manual"`
	DiscountID     string
	ManualDiscount *decimal.Decimal

	StartDate   string `validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `validate:"omitempty,datetime=2006-01-02"`
	ForceActive bool

	InvoiceStatus    string `validate:"omitempty,oneof=paid free pending"`
	InvoiceTotalPaid *decimal.Decimal
	InvoiceDueAt     *time.Time
	InvoiceMethod    string
	InvoiceReceipt   string

	SoldBy string
	Note   string
}

type CreateResult struct {
	Membership Membership
	// Existing is set when a live membership for the same member and plan
	// already existed and nothing was created.
	Existing bool
}

// TxHook runs inside the create transaction after the membership row is
// written. An error rolls back the whole creation.
type TxHook func(ctx context.Context, tx *gorm.DB, m *Membership) error

type CreateOptions struct {
	TxHooks []TxHook
}

type CreateOption func(*CreateOptions)

func WithTxHook(hook TxHook) CreateOption {
	return func(o *CreateOptions) {
		o.TxHooks = append(o.TxHooks, hook)
	}
}

type ModifyDatesRequest struct {
	MembershipID         string `validate:"required"`
	StartDate            string `validate:"required,datetime=2006-01-02"`
	EndDate              string `validate:"omitempty,datetime=2006-01-02"`
	AutoDetermineEndDate bool
	Note                 string
}

type ModifyLimitsRequest struct {
	MembershipID string `validate:"required"`
	// NumberOfClasses of zero means unlimited.
	NumberOfClasses      *int `validate:"omitempty,min=0"`
	AllowSharing         *bool
	AllowHolds           *bool
	NumberOfHoldsAllowed *int `validate:"omitempty,min=0"`
	HoldDays             *int `validate:"omitempty,min=0"`
	Note                 string
}

type HoldRequest struct {
	MembershipID  string `validate:"required"`
	HoldStartDate string `validate:"required,datetime=2006-01-02"`
	HoldEndDate   string `validate:"required,datetime=2006-01-02"`
	AutoResume    bool
	Reason        string
	Note          string
}

type ResumeRequest struct {
	MembershipID string `validate:"required"`
	Note         string
}

type CancelRequest struct {
	MembershipID string `validate:"required"`
	CanceledAt   *time.Time
	Reason       string
	Note         string
}

type UpgradeRequest struct {
	MembershipID     string `validate:"required"`
	PlanID           string `validate:"required"`
	PaidUpgrade      bool
	UpgradeFee       *decimal.Decimal
	PaymentMethod    string
	ReceiptReference string
	Note             string
}

type TransferRequest struct {
	MembershipID            string `validate:"required"`
	ToMemberID              string `validate:"required"`
	PaidTransfer            bool
	TransferFee             *decimal.Decimal
	PaymentMethod           string
	ReceiptReference        string
	CreateNewPlanAndProRate bool
	Note                    string
}

type ReinstateRequest struct {
	MembershipID string `validate:"required"`
	Note         string
}

type SweepResult struct {
	Scanned int
	Updated int
	Failed  int
	// Transitions counts moves keyed "FROM->TO".
	Transitions map[string]int
	// FailedIDs lists rows that could not be swept this run.
	FailedIDs []snowflake.ID
}
