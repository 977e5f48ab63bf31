package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrInvalidMembership   = errors.New("invalid_membership")
	ErrInvalidMember       = errors.New("invalid_member")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrMembershipNotFound  = errors.New("membership_not_found")
	ErrInvalidDateRange    = errors.New("end_date_before_start_date")
	ErrInvalidHoldRange    = errors.New("invalid_hold_range")
	ErrInvalidQuota        = errors.New("invalid_quota")
	ErrInvalidInvoiceState = errors.New("invalid_invoice_status")
	ErrInvalidUpgradeFee   = errors.New("invalid_upgrade_fee")

	ErrMembershipAlreadyCanceled = errors.New("membership_already_canceled")
	ErrMembershipDeleted         = errors.New("membership_deleted")
	ErrMembershipNotCancelable   = errors.New("membership_not_cancelable")

	ErrTransferTargetNotFound      = errors.New("transfer_target_not_found")
	ErrTransferSameMember          = errors.New("transfer_same_member")
	ErrTransferTargetArchived      = errors.New("transfer_target_archived")
	ErrTransferTargetHasMembership = errors.New("transfer_target_has_membership")
	ErrTransferMissingDates        = errors.New("transfer_missing_dates")
	ErrTransferNoRemainingDays     = errors.New("transfer_no_remaining_days")
	ErrTransferInvalidPrice        = errors.New("transfer_invalid_price")
	ErrInvalidTransferFee          = errors.New("invalid_transfer_fee")
	ErrInvalidPaymentMethod        = errors.New("invalid_payment_method")
)

type Status string

const (
	StatusUpcoming     Status = "UPCOMING"
	StatusActive       Status = "ACTIVE"
	StatusExpired      Status = "EXPIRED"
	StatusExpiredLimit Status = "EXPIRED_LIMIT"
	StatusHold         Status = "HOLD"
	StatusCanceled     Status = "CANCELED"
	StatusDeleted      Status = "DELETED"
	// StatusPending is written by checkout flows that have not settled yet.
	StatusPending Status = "PENDING"
)

// LiveStatuses are the statuses that block a second membership for the
// same member and plan.
var LiveStatuses = []Status{StatusActive, StatusUpcoming, StatusPending}

// Membership is the subscription aggregate. Commercial fields are a
// snapshot of the plan at creation or upgrade time.
type Membership struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	UUID     string       `json:"uuid" gorm:"type:varchar(36);not null;uniqueIndex"`
	OrgID    snowflake.ID `json:"org_id" gorm:"not null;index:idx_memberships_member_plan,priority:1"`
	MemberID snowflake.ID `json:"member_id" gorm:"not null;index:idx_memberships_member_plan,priority:2"`
	PlanID   snowflake.ID `json:"plan_id" gorm:"not null;index:idx_memberships_member_plan,priority:3"`

	Name            string          `json:"name" gorm:"type:varchar(191);not null"`
	Type            string          `json:"type" gorm:"type:varchar(50)"`
	Venue           string          `json:"venue" gorm:"type:varchar(191)"`
	Price           decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	PricePerSession decimal.Decimal `json:"price_per_session" gorm:"type:numeric(12,2);not null;default:0"`
	Currency        string          `json:"currency" gorm:"type:varchar(3);not null"`
	TotalQuota      *int            `json:"total_quota"`
	DailyQuota      *int            `json:"daily_quota"`
	QuotaUsed       int             `json:"quota_used" gorm:"not null;default:0"`

	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	StartAt   *time.Time `json:"start_at"`
	EndAt     *time.Time `json:"end_at"`

	InvoiceTotal     decimal.Decimal             `json:"invoice_total" gorm:"type:numeric(12,2);not null;default:0"`
	InvoiceTotalPaid decimal.Decimal             `json:"invoice_total_paid" gorm:"type:numeric(12,2);not null;default:0"`
	InvoiceCurrency  string                      `json:"invoice_currency" gorm:"type:varchar(3)"`
	InvoiceDueAt     *time.Time                  `json:"invoice_due_at"`
	InvoiceStatus    billingdomain.InvoiceStatus `json:"invoice_status" gorm:"type:varchar(16)"`
	InvoiceMethod    string                      `json:"invoice_method" gorm:"type:varchar(32)"`
	InvoiceReceipt   string                      `json:"invoice_receipt" gorm:"type:varchar(191)"`

	DiscountID    *snowflake.ID    `json:"discount_id"`
	DiscountValue *decimal.Decimal `json:"discount_value" gorm:"type:numeric(12,2)"`
	DiscountUnit  *string          `json:"discount_unit" gorm:"type:varchar(10)"`

	Status     Status     `json:"status" gorm:"type:varchar(16);not null;index"`
	IsCanceled bool       `json:"is_canceled" gorm:"not null;default:false"`
	IsDeleted  bool       `json:"is_deleted" gorm:"not null;default:false"`
	CanceledAt *time.Time `json:"canceled_at"`

	Extension Extension `json:"extension" gorm:"column:note;type:text"`

	CreatedBy *snowflake.ID `json:"created_by"`
	SoldBy    *snowflake.ID `json:"sold_by"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"not null"`
}

func (Membership) TableName() string { return "memberships" }

// IsModifiable reports whether administrative actions may change m.
func (m *Membership) IsModifiable() bool {
	return !m.IsCanceled && !m.IsDeleted && m.Status != StatusCanceled && m.Status != StatusDeleted
}

// CanHold reports whether a freeze may start: only upcoming and active
// records can be put on hold.
func (m *Membership) CanHold() bool {
	return m.IsModifiable() && (m.Status == StatusUpcoming || m.Status == StatusActive)
}

func (m *Membership) IsLive() bool {
	if !m.IsModifiable() {
		return false
	}
	for _, s := range LiveStatuses {
		if m.Status == s {
			return true
		}
	}
	return false
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *Membership) error
	Update(ctx context.Context, db *gorm.DB, item *Membership) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Membership, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Membership, error)
	// FindLive returns the live membership of member on plan, if any.
	FindLive(ctx context.Context, db *gorm.DB, orgID, memberID, planID snowflake.ID) (*Membership, error)
	ListByMember(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) ([]Membership, error)
	// ListSweepCandidates pages through rows whose status the scheduler may
	// move, across all organizations, ordered by id.
	ListSweepCandidates(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]Membership, error)
}

// Service is the membership lifecycle engine. Every mutation runs in one
// transaction. ModifyDates, ModifyLimits, Hold, Resume, Upgrade and
// Reinstate return a nil membership with a nil error when the record is not
// in a state the action applies to.
type Service interface {
	Create(ctx context.Context, req CreateRequest, opts ...CreateOption) (CreateResult, error)
	Get(ctx context.Context, id string) (Membership, error)
	ListByMember(ctx context.Context, memberID string) ([]Membership, error)

	ModifyDates(ctx context.Context, req ModifyDatesRequest) (*Membership, error)
	ModifyLimits(ctx context.Context, req ModifyLimitsRequest) (*Membership, error)
	Hold(ctx context.Context, req HoldRequest) (*Membership, error)
	Resume(ctx context.Context, req ResumeRequest) (*Membership, error)
	Cancel(ctx context.Context, req CancelRequest) (*Membership, error)
	Upgrade(ctx context.Context, req UpgradeRequest) (*Membership, error)
	Transfer(ctx context.Context, req TransferRequest) (*Membership, error)
	Reinstate(ctx context.Context, req ReinstateRequest) (*Membership, error)

	SweepStatuses(ctx context.Context, batchSize int) (SweepResult, error)
}
