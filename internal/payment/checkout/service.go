package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gymstack/gymstack/internal/clock"
	"github.com/gymstack/gymstack/internal/config"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	"github.com/gymstack/gymstack/internal/orgcontext"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	"github.com/gymstack/gymstack/internal/pendingintent"
	pendingdomain "github.com/gymstack/gymstack/internal/pendingintent/domain"
	plandomain "github.com/gymstack/gymstack/internal/plan/domain"
	"github.com/gymstack/gymstack/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Issuer     paymentdomain.InvoiceIssuer
	Intents    *pendingintent.Chain
	Pricing    *pricing.Calculator
	MemberRepo memberdomain.Repository
	PlanRepo   plandomain.Repository
}

// Service opens a hosted payment for a membership purchase and stages the
// purchase as a pending intent keyed by the provider's invoice id.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	validate   *validator.Validate
	callback   config.CallbackConfig
	issuer     paymentdomain.InvoiceIssuer
	intents    *pendingintent.Chain
	pricing    *pricing.Calculator
	memberRepo memberdomain.Repository
	planRepo   plandomain.Repository
}

func NewService(p Params) paymentdomain.CheckoutService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.checkout"),
		genID:      p.GenID,
		clock:      p.Clock,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		callback:   p.Cfg.Callback,
		issuer:     p.Issuer,
		intents:    p.Intents,
		pricing:    p.Pricing,
		memberRepo: p.MemberRepo,
		planRepo:   p.PlanRepo,
	}
}

func (s *Service) Start(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, paymentdomain.ErrInvalidCheckout
	}
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}

	memberID, err := snowflake.ParseString(strings.TrimSpace(req.MemberID))
	if err != nil {
		return nil, paymentdomain.ErrInvalidCheckout
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil {
		return nil, paymentdomain.ErrInvalidCheckout
	}
	mode, err := pricing.ParseDiscountMode(req.DiscountMode)
	if err != nil {
		return nil, err
	}
	var discountID *snowflake.ID
	if mode == pricing.DiscountModeAuto && strings.TrimSpace(req.DiscountID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(req.DiscountID))
		if err != nil {
			return nil, paymentdomain.ErrInvalidCheckout
		}
		discountID = &id
	}

	member, err := s.memberRepo.FindByID(ctx, s.db, orgID, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil || member.IsArchived() {
		return nil, memberdomain.ErrMemberNotFound
	}
	plan, err := s.planRepo.FindByID(ctx, s.db, orgID, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}

	quote, err := s.pricing.Quote(ctx, s.db, pricing.QuoteRequest{
		OrgID:          orgID,
		Base:           plan.Price,
		Mode:           mode,
		DiscountID:     discountID,
		ManualDiscount: req.ManualDiscount,
	})
	if err != nil {
		return nil, err
	}
	if !quote.Total.IsPositive() {
		return nil, paymentdomain.ErrNothingToPay
	}

	invoice, err := s.issuer.CreateInvoice(ctx, paymentdomain.InvoiceRequest{
		ExternalID:  s.genID.Generate().String(),
		Amount:      quote.Total,
		Currency:    plan.Currency,
		Description: plan.Name,
		PayerEmail:  member.Email,
		SuccessURL:  s.callback.ReturnURL,
		FailureURL:  s.callback.ReturnURL,
		Metadata: map[string]string{
			"org_id":    orgID.String(),
			"plan_id":   plan.ID.String(),
			"member_id": member.ID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open hosted invoice: %w", err)
	}

	intent := pendingdomain.Intent{
		OrgID:          orgID,
		MemberID:       member.ID.String(),
		PlanID:         plan.ID.String(),
		DiscountMode:   string(mode),
		DiscountID:     strings.TrimSpace(req.DiscountID),
		ManualDiscount: req.ManualDiscount,
		StartDate:      req.StartDate,
		SoldBy:         strings.TrimSpace(req.SoldBy),
		InvoiceID:      invoice.ID,
		Amount:         quote.Total,
		Currency:       plan.Currency,
		ExpiresAt:      invoice.ExpiresAt,
	}
	staged, err := s.intents.Stage(ctx, intent)
	if err != nil {
		if errors.Is(err, pendingdomain.ErrInvalidIntent) {
			return nil, paymentdomain.ErrInvalidCheckout
		}
		return nil, fmt.Errorf("stage pending intent: %w", err)
	}

	s.log.Info("checkout started",
		zap.String("org_id", orgID.String()),
		zap.String("member_id", member.ID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.String("invoice_id", invoice.ID),
		zap.String("amount", quote.Total.StringFixed(2)),
	)

	out := &paymentdomain.CheckoutSession{
		InvoiceID:   invoice.ID,
		CheckoutURL: invoice.URL,
		Amount:      quote.Total,
		Currency:    plan.Currency,
	}
	if staged.ExpiresAt != nil {
		out.ExpiresAt = staged.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out, nil
}
