package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"github.com/gymstack/gymstack/internal/calendar"
	"github.com/gymstack/gymstack/internal/clock"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"github.com/gymstack/gymstack/internal/observability"
	"github.com/gymstack/gymstack/internal/orgcontext"
	organizationdomain "github.com/gymstack/gymstack/internal/organization/domain"
	plandomain "github.com/gymstack/gymstack/internal/plan/domain"
	"github.com/gymstack/gymstack/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const invoiceDueAfter = time.Hour

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	validate *validator.Validate
	metrics  *observability.Metrics

	repo       membershipdomain.Repository
	memberRepo memberdomain.Repository
	planRepo   plandomain.Repository
	orgRepo    organizationdomain.Repository
	pricing    *pricing.Calculator
	auditSvc   auditdomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Repo       membershipdomain.Repository
	MemberRepo memberdomain.Repository
	PlanRepo   plandomain.Repository
	OrgRepo    organizationdomain.Repository
	Pricing    *pricing.Calculator
	AuditSvc   auditdomain.Service
	Metrics    *observability.Metrics `optional:"true"`
}

func NewService(p ServiceParam) membershipdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("membership.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  p.Metrics,

		repo:       p.Repo,
		memberRepo: p.MemberRepo,
		planRepo:   p.PlanRepo,
		orgRepo:    p.OrgRepo,
		pricing:    p.Pricing,
		auditSvc:   p.AuditSvc,
	}
}

// scope is the tenant and calendar context of one operation.
type scope struct {
	orgID snowflake.ID
	loc   *time.Location
	now   time.Time
	today time.Time
}

func (s *Service) resolveScope(ctx context.Context) (scope, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return scope{}, membershipdomain.ErrInvalidOrganization
	}

	loc, err := s.orgLocation(ctx, orgID)
	if err != nil {
		return scope{}, err
	}

	now := s.clock.Now(ctx)
	return scope{
		orgID: orgID,
		loc:   loc,
		now:   now,
		today: calendar.Today(now, loc),
	}, nil
}

func (s *Service) orgLocation(ctx context.Context, orgID snowflake.ID) (*time.Location, error) {
	org, err := s.orgRepo.FindByID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, organizationdomain.ErrOrganizationNotFound
	}
	return calendar.LoadLocation(org.Timezone)
}

func (s *Service) Get(ctx context.Context, id string) (membershipdomain.Membership, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return membershipdomain.Membership{}, membershipdomain.ErrInvalidOrganization
	}

	membershipID, err := parseID(id, membershipdomain.ErrInvalidMembership)
	if err != nil {
		return membershipdomain.Membership{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, membershipID)
	if err != nil {
		return membershipdomain.Membership{}, err
	}
	if item == nil {
		return membershipdomain.Membership{}, membershipdomain.ErrMembershipNotFound
	}
	return *item, nil
}

func (s *Service) ListByMember(ctx context.Context, memberID string) ([]membershipdomain.Membership, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, membershipdomain.ErrInvalidOrganization
	}

	id, err := parseID(memberID, membershipdomain.ErrInvalidMember)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByMember(ctx, s.db, orgID, id)
}

func (s *Service) Create(ctx context.Context, req membershipdomain.CreateRequest, opts ...membershipdomain.CreateOption) (membershipdomain.CreateResult, error) {
	res, err := s.create(ctx, req, opts...)
	switch {
	case err != nil:
		s.metrics.ObserveOperation("create", "error")
	case res.Existing:
		s.metrics.ObserveOperation("create", "existing")
	default:
		s.metrics.ObserveOperation("create", "created")
	}
	return res, err
}

func (s *Service) create(ctx context.Context, req membershipdomain.CreateRequest, opts ...membershipdomain.CreateOption) (membershipdomain.CreateResult, error) {
	if err := s.validateRequest(req); err != nil {
		return membershipdomain.CreateResult{}, err
	}

	var options membershipdomain.CreateOptions
	for _, opt := range opts {
		opt(&options)
	}

	sc, err := s.resolveScope(ctx)
	if err != nil {
		return membershipdomain.CreateResult{}, err
	}

	memberID, err := parseID(req.MemberID, membershipdomain.ErrInvalidMember)
	if err != nil {
		return membershipdomain.CreateResult{}, err
	}
	planID, err := parseID(req.PlanID, membershipdomain.ErrInvalidPlan)
	if err != nil {
		return membershipdomain.CreateResult{}, err
	}

	mode, err := pricing.ParseDiscountMode(req.DiscountMode)
	if err != nil {
		return membershipdomain.CreateResult{}, err
	}
	var discountID *snowflake.ID
	if mode == pricing.DiscountModeAuto && strings.TrimSpace(req.DiscountID) != "" {
		id, err := parseID(req.DiscountID, membershipdomain.ErrInvalidRequest)
		if err != nil {
			return membershipdomain.CreateResult{}, err
		}
		discountID = &id
	}

	var soldBy *snowflake.ID
	if strings.TrimSpace(req.SoldBy) != "" {
		id, err := parseID(req.SoldBy, membershipdomain.ErrInvalidRequest)
		if err != nil {
			return membershipdomain.CreateResult{}, err
		}
		soldBy = &id
	}

	invoiceStatus := billingdomain.InvoiceStatusPaid
	if req.InvoiceStatus != "" {
		invoiceStatus = billingdomain.InvoiceStatus(req.InvoiceStatus)
	}

	start := sc.today
	if req.StartDate != "" {
		if start, err = calendar.ParseDate(req.StartDate); err != nil {
			return membershipdomain.CreateResult{}, err
		}
	}
	var explicitEnd *time.Time
	if req.EndDate != "" {
		end, err := calendar.ParseDate(req.EndDate)
		if err != nil {
			return membershipdomain.CreateResult{}, err
		}
		if end.Before(start) {
			return membershipdomain.CreateResult{}, membershipdomain.ErrInvalidDateRange
		}
		explicitEnd = &end
	}

	var result membershipdomain.CreateResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.memberRepo.FindByIDForUpdate(ctx, tx, sc.orgID, memberID)
		if err != nil {
			return err
		}
		if member == nil || member.IsDeleted {
			return memberdomain.ErrMemberNotFound
		}

		plan, err := s.planRepo.FindByID(ctx, tx, sc.orgID, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		existing, err := s.repo.FindLive(ctx, tx, sc.orgID, memberID, planID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = membershipdomain.CreateResult{Membership: *existing, Existing: true}
			return nil
		}

		quote, err := s.pricing.Quote(ctx, tx, pricing.QuoteRequest{
			OrgID:          sc.orgID,
			Base:           plan.Price,
			Mode:           mode,
			DiscountID:     discountID,
			ManualDiscount: req.ManualDiscount,
		})
		if err != nil {
			return err
		}

		var end time.Time
		if explicitEnd != nil {
			end = *explicitEnd
		} else if end, err = calendar.DeriveEndDate(plan.CycleDuration, plan.CycleUnit, start); err != nil {
			return err
		}
		if end.Before(start) {
			return membershipdomain.ErrInvalidDateRange
		}

		status := membershipdomain.StatusActive
		if !req.ForceActive && start.After(sc.today) {
			status = membershipdomain.StatusUpcoming
		}

		dueAt := sc.now.Add(invoiceDueAfter)
		if req.InvoiceDueAt != nil {
			dueAt = req.InvoiceDueAt.UTC()
		}

		totalPaid := decimal.Zero
		if invoiceStatus == billingdomain.InvoiceStatusPaid {
			totalPaid = quote.Total
		}
		if req.InvoiceTotalPaid != nil {
			totalPaid = req.InvoiceTotalPaid.Round(2)
		}

		item := membershipdomain.Membership{
			ID:               s.genID.Generate(),
			UUID:             uuid.NewString(),
			OrgID:            sc.orgID,
			MemberID:         member.ID,
			InvoiceTotal:     quote.Total,
			InvoiceTotalPaid: totalPaid,
			InvoiceDueAt:     &dueAt,
			InvoiceStatus:    invoiceStatus,
			InvoiceMethod:    strings.TrimSpace(req.InvoiceMethod),
			InvoiceReceipt:   strings.TrimSpace(req.InvoiceReceipt),
			DiscountID:       quote.DiscountID,
			DiscountValue:    quote.DiscountValue,
			Status:           status,
			CreatedBy:        orgcontext.ActorID(ctx),
			SoldBy:           soldBy,
			CreatedAt:        sc.now,
			UpdatedAt:        sc.now,
		}
		if quote.DiscountUnit != nil {
			unit := string(*quote.DiscountUnit)
			item.DiscountUnit = &unit
		}
		applyPlanSnapshot(&item, plan)
		applyWindow(&item, &start, &end, sc.loc)

		if err := s.repo.Insert(ctx, tx, &item); err != nil {
			return err
		}

		for _, hook := range options.TxHooks {
			if err := hook(ctx, tx, &item); err != nil {
				return err
			}
		}

		if note := strings.TrimSpace(req.Note); note != "" {
			if err := s.appendNote(ctx, tx, &item, auditdomain.CategoryGeneral, "Membership created", note); err != nil {
				return err
			}
		}

		result = membershipdomain.CreateResult{Membership: item}
		return nil
	})
	if err != nil {
		return membershipdomain.CreateResult{}, err
	}

	if result.Existing {
		s.log.Info("live membership already exists",
			zap.String("membership_id", result.Membership.ID.String()),
			zap.String("member_id", memberID.String()),
			zap.String("plan_id", planID.String()),
		)
	} else {
		s.log.Info("membership created",
			zap.String("membership_id", result.Membership.ID.String()),
			zap.String("member_id", memberID.String()),
			zap.String("plan_id", planID.String()),
			zap.String("status", string(result.Membership.Status)),
			zap.String("invoice_total", result.Membership.InvoiceTotal.StringFixed(2)),
		)
	}
	return result, nil
}

func (s *Service) lockMembership(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*membershipdomain.Membership, error) {
	item, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, membershipdomain.ErrMembershipNotFound
	}
	return item, nil
}

func (s *Service) appendNote(ctx context.Context, tx *gorm.DB, item *membershipdomain.Membership, category auditdomain.Category, title, body string) error {
	if s.auditSvc == nil {
		return nil
	}
	_, err := s.auditSvc.AppendNote(ctx, tx, auditdomain.AppendNoteRequest{
		OrgID:       item.OrgID,
		SubjectType: auditdomain.SubjectMembership,
		SubjectID:   item.ID,
		Title:       title,
		Body:        body,
		Category:    category,
	})
	return err
}

// observe records the outcome of a mutation that may be a no-op.
func (s *Service) observe(operation string, item *membershipdomain.Membership, err error) {
	switch {
	case err != nil:
		s.metrics.ObserveOperation(operation, "error")
		s.log.Warn("membership operation failed", zap.String("operation", operation), zap.Error(err))
	case item == nil:
		s.metrics.ObserveOperation(operation, "noop")
	default:
		s.metrics.ObserveOperation(operation, "ok")
		s.log.Info("membership updated",
			zap.String("operation", operation),
			zap.String("membership_id", item.ID.String()),
			zap.String("status", string(item.Status)),
		)
	}
}

func (s *Service) validateRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", membershipdomain.ErrInvalidRequest, toSnake(verrs[0].Field()))
		}
		return membershipdomain.ErrInvalidRequest
	}
	return nil
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}

func applyPlanSnapshot(item *membershipdomain.Membership, plan *plandomain.Plan) {
	item.PlanID = plan.ID
	item.Name = plan.Name
	item.Type = plan.Type
	item.Venue = plan.Venue
	item.Price = plan.Price
	item.PricePerSession = plan.PricePerSession
	item.Currency = plan.Currency
	item.InvoiceCurrency = plan.Currency
	item.TotalQuota = plan.TotalQuota
	item.DailyQuota = plan.DailyQuota
}

// applyWindow sets the local dates and their UTC instants.
func applyWindow(item *membershipdomain.Membership, start, end *time.Time, loc *time.Location) {
	item.StartDate, item.StartAt = nil, nil
	item.EndDate, item.EndAt = nil, nil
	if start != nil {
		d := calendar.Date(*start)
		at := calendar.ToUTCInstant(d, loc)
		item.StartDate, item.StartAt = &d, &at
	}
	if end != nil {
		d := calendar.Date(*end)
		at := calendar.ToUTCInstant(d, loc)
		item.EndDate, item.EndAt = &d, &at
	}
}

// dateOf normalizes a stored date column to a calendar date.
func dateOf(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := calendar.Date(*t)
	return &d
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format(calendar.DateLayout)
}

func joinNote(detail, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return detail
	}
	return detail + "\n" + note
}

// toSnake maps a Go field name such as MemberID to member_id.
func toSnake(field string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range field {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		prevLower = !upper
		b.WriteRune(r)
	}
	return b.String()
}
