// Package callback reconciles payment confirmations into memberships. A
// confirmation may arrive more than once, concurrently, and with whichever
// identifier the provider chose to echo; each paid purchase still yields
// exactly one membership, invoice and payment.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"github.com/gymstack/gymstack/internal/clock"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"github.com/gymstack/gymstack/internal/observability"
	"github.com/gymstack/gymstack/internal/orgcontext"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	"github.com/gymstack/gymstack/internal/pendingintent"
	pendingdomain "github.com/gymstack/gymstack/internal/pendingintent/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errAlreadyProcessed = errors.New("payment_already_processed")

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Verifier       paymentdomain.Verifier
	Intents        *pendingintent.Chain
	Memberships    membershipdomain.Service
	BillingRepo    billingdomain.Repository
	MemberRepo     memberdomain.Repository
	Metrics        *observability.Metrics `optional:"true"`
	TracerProvider trace.TracerProvider   `optional:"true"`
}

type Gateway struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	verifier    paymentdomain.Verifier
	intents     *pendingintent.Chain
	memberships membershipdomain.Service
	billingRepo billingdomain.Repository
	memberRepo  memberdomain.Repository
	metrics     *observability.Metrics
	tracer      trace.Tracer

	group singleflight.Group
}

func NewGateway(p Params) *Gateway {
	tp := p.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Gateway{
		db:          p.DB,
		log:         p.Log.Named("payment.callback"),
		genID:       p.GenID,
		clock:       p.Clock,
		verifier:    p.Verifier,
		intents:     p.Intents,
		memberships: p.Memberships,
		billingRepo: p.BillingRepo,
		memberRepo:  p.MemberRepo,
		metrics:     p.Metrics,
		tracer:      tp.Tracer("github.com/gymstack/gymstack/internal/payment/callback"),
	}
}

// HandleCallback never returns an error: every path ends in an outcome the
// payer can be redirected with.
func (g *Gateway) HandleCallback(ctx context.Context, req paymentdomain.CallbackRequest) paymentdomain.Outcome {
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)

	ctx, span := g.tracer.Start(ctx, "payment.callback",
		trace.WithAttributes(
			attribute.String("payment.id", req.PaymentID),
			attribute.String("payment.invoice_id", req.InvoiceID),
		))
	defer span.End()

	// Concurrent deliveries of the same callback to this process share
	// one reconciliation.
	v, _, shared := g.group.Do(req.PaymentID+"|"+req.InvoiceID, func() (any, error) {
		return g.reconcile(ctx, req), nil
	})
	out := v.(paymentdomain.Outcome)

	span.SetAttributes(attribute.String("payment.outcome", string(out.Kind)), attribute.Bool("singleflight.shared", shared))
	if !out.Success() {
		span.SetStatus(codes.Error, string(out.Kind))
	}
	g.metrics.ObserveCallback(string(out.Kind))

	fields := []zap.Field{
		zap.String("outcome", string(out.Kind)),
		zap.String("reference", out.Reference),
		zap.String("payment_id", req.PaymentID),
		zap.String("invoice_id", req.InvoiceID),
	}
	if out.MembershipID != 0 {
		fields = append(fields, zap.String("membership_id", out.MembershipID.String()))
	}
	if out.Success() {
		g.log.Info("payment callback reconciled", fields...)
	} else {
		g.log.Warn("payment callback not reconciled", fields...)
	}
	return out
}

func (g *Gateway) reconcile(ctx context.Context, req paymentdomain.CallbackRequest) paymentdomain.Outcome {
	reference := firstNonEmpty(req.PaymentID, req.InvoiceID)
	if reference == "" {
		return paymentdomain.Outcome{
			Kind:    paymentdomain.OutcomeInvalid,
			Message: "The payment confirmation did not include a payment or invoice reference.",
		}
	}

	verification, out, ok := g.verify(ctx, req, reference)
	if !ok {
		return out
	}
	reference = firstNonEmpty(verification.PaymentID, req.PaymentID, verification.InvoiceID, req.InvoiceID)
	identifiers := uniqueNonEmpty(req.PaymentID, req.InvoiceID, verification.PaymentID, verification.InvoiceID)
	provider := g.verifier.Provider()

	// The org is unknown when the provider echoes no metadata; the lookup
	// then spans every organization.
	existing, err := g.billingRepo.FindPaidPayment(ctx, g.db, g.knownOrg(ctx, verification), provider, identifiers)
	if err != nil {
		g.log.Error("existing payment lookup failed", zap.String("reference", reference), zap.Error(err))
		return failed(reference)
	}
	if existing != nil {
		g.intents.Clear(ctx, identifiers...)
		return alreadyProcessed(reference, existing.MembershipID)
	}

	intent := g.locateIntent(ctx, req, verification, identifiers)
	if intent == nil {
		return paymentdomain.Outcome{
			Kind:      paymentdomain.OutcomeNotFound,
			Message:   fmt.Sprintf("We received your payment but could not match it to a membership purchase. Please contact support with reference %s.", reference),
			Reference: reference,
		}
	}

	if intent.Expired(g.clock.Now(ctx)) {
		g.intents.Clear(ctx, append(identifiers, intent.Identifiers()...)...)
		return paymentdomain.Outcome{
			Kind:      paymentdomain.OutcomeExpired,
			Message:   fmt.Sprintf("Your checkout expired before the payment was confirmed. Please contact support with reference %s.", reference),
			Reference: reference,
		}
	}

	out = g.create(ctx, *intent, verification, provider, reference, identifiers)
	if out.Success() {
		g.intents.Clear(ctx, append(identifiers, intent.Identifiers()...)...)
	}
	return out
}

// verify asks the provider about whichever identifier was echoed. ok is
// false when out is final.
func (g *Gateway) verify(ctx context.Context, req paymentdomain.CallbackRequest, reference string) (*paymentdomain.Verification, paymentdomain.Outcome, bool) {
	identifier, kind := req.PaymentID, paymentdomain.IdentifierPaymentID
	if identifier == "" {
		identifier, kind = req.InvoiceID, paymentdomain.IdentifierInvoiceID
	}

	v, err := g.verifier.Verify(ctx, identifier, kind)
	switch {
	case errors.Is(err, paymentdomain.ErrProviderUnavailable):
		g.log.Warn("payment provider unavailable", zap.String("reference", reference), zap.Error(err))
		return nil, paymentdomain.Outcome{
			Kind:      paymentdomain.OutcomeUpstreamUnavailable,
			Message:   fmt.Sprintf("We could not reach the payment provider to confirm your payment. Please try again in a few minutes. Reference %s.", reference),
			Reference: reference,
		}, false
	case err != nil:
		g.log.Warn("payment verification failed", zap.String("reference", reference), zap.Error(err))
		return nil, paymentdomain.Outcome{
			Kind:      paymentdomain.OutcomeFailed,
			Message:   fmt.Sprintf("The payment provider could not confirm this payment. Please contact support with reference %s.", reference),
			Reference: reference,
		}, false
	case !v.IsPaid():
		status := v.Status
		if status == "" {
			status = "unknown"
		}
		return nil, paymentdomain.Outcome{
			Kind:      paymentdomain.OutcomeNotPaid,
			Message:   fmt.Sprintf("Your payment has not been completed yet (status: %s). Reference %s.", status, reference),
			Reference: reference,
		}, false
	}
	return v, paymentdomain.Outcome{}, true
}

func (g *Gateway) knownOrg(ctx context.Context, v *paymentdomain.Verification) snowflake.ID {
	if orgID, ok := orgcontext.OrgIDFromContext(ctx); ok && orgID != 0 {
		return orgID
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(v.OrgID)); err == nil && id != 0 {
		return id
	}
	return 0
}

// locateIntent probes each store with the verified invoice id, then the
// echoed invoice id, then the payment id; falls back to scanning each store
// for an embedded match; and finally rebuilds the intent from provider
// metadata.
func (g *Gateway) locateIntent(ctx context.Context, req paymentdomain.CallbackRequest, v *paymentdomain.Verification, identifiers []string) *pendingdomain.Intent {
	keys := uniqueNonEmpty(v.InvoiceID, req.InvoiceID, req.PaymentID)

	for _, store := range g.intents.Stores() {
		intent, err := probe(ctx, store, keys)
		if err != nil {
			g.log.Warn("pending intent lookup failed", zap.String("store", store.Name()), zap.Error(err))
			continue
		}
		if intent != nil {
			return intent
		}
	}

	for _, store := range g.intents.Stores() {
		intent, err := store.Scan(ctx, func(i pendingdomain.Intent) bool { return i.Matches(identifiers...) })
		if err != nil {
			g.log.Warn("pending intent scan failed", zap.String("store", store.Name()), zap.Error(err))
			continue
		}
		if intent != nil {
			return intent
		}
	}

	intent, err := g.reconstruct(ctx, v)
	if err != nil {
		g.log.Warn("pending intent reconstruction failed", zap.Error(err))
		return nil
	}
	return intent
}

func probe(ctx context.Context, store pendingdomain.Store, keys []string) (*pendingdomain.Intent, error) {
	for _, key := range keys {
		intent, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			return intent, nil
		}
	}
	return nil, nil
}

// reconstruct builds an intent from the plan and customer fields the
// provider echoed. It returns nil, nil when they are insufficient.
func (g *Gateway) reconstruct(ctx context.Context, v *paymentdomain.Verification) (*pendingdomain.Intent, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(v.OrgID))
	if err != nil || orgID == 0 || strings.TrimSpace(v.PlanID) == "" {
		return nil, nil
	}

	memberID := strings.TrimSpace(v.MemberID)
	if memberID == "" {
		if v.CustomerEmail == "" && v.CustomerPhone == "" {
			return nil, nil
		}
		member, err := g.memberRepo.FindByContact(ctx, g.db, orgID, v.CustomerEmail, v.CustomerPhone)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, nil
		}
		memberID = member.ID.String()
	}

	return &pendingdomain.Intent{
		OrgID:     orgID,
		MemberID:  memberID,
		PlanID:    strings.TrimSpace(v.PlanID),
		InvoiceID: v.InvoiceID,
		PaymentID: v.PaymentID,
		Amount:    v.Amount,
		Currency:  v.Currency,
		CreatedAt: g.clock.Now(ctx),
	}, nil
}

func (g *Gateway) create(
	ctx context.Context,
	intent pendingdomain.Intent,
	v *paymentdomain.Verification,
	provider, reference string,
	identifiers []string,
) paymentdomain.Outcome {
	ctx = orgcontext.WithOrgID(ctx, intent.OrgID)
	now := g.clock.Now(ctx)
	paidAt := now
	if v.PaidAt != nil {
		paidAt = *v.PaidAt
	}

	hook := func(ctx context.Context, tx *gorm.DB, m *membershipdomain.Membership) error {
		existing, err := g.billingRepo.FindPaidPayment(ctx, tx, intent.OrgID, provider, identifiers)
		if err != nil {
			return err
		}
		if existing != nil {
			return errAlreadyProcessed
		}

		invoice := billingdomain.Invoice{
			ID:                g.genID.Generate(),
			OrgID:             m.OrgID,
			Number:            billingdomain.NewInvoiceNumber(now),
			MembershipID:      m.ID,
			MemberID:          m.MemberID,
			Total:             m.InvoiceTotal,
			Currency:          m.InvoiceCurrency,
			Status:            billingdomain.InvoiceStatusPaid,
			DueAt:             m.InvoiceDueAt,
			PaidAt:            &paidAt,
			ProviderInvoiceID: optional(v.InvoiceID),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := g.billingRepo.InsertInvoice(ctx, tx, &invoice); err != nil {
			return err
		}

		amount := v.Amount
		if !amount.IsPositive() {
			amount = m.InvoiceTotal
		}
		currency := v.Currency
		if currency == "" {
			currency = m.InvoiceCurrency
		}
		payment := billingdomain.Payment{
			ID:                g.genID.Generate(),
			OrgID:             m.OrgID,
			InvoiceID:         invoice.ID,
			MembershipID:      m.ID,
			Provider:          provider,
			Reference:         reference,
			ProviderPaymentID: optional(v.PaymentID),
			ProviderInvoiceID: optional(v.InvoiceID),
			Amount:            amount.Round(2),
			Currency:          currency,
			Method:            billingdomain.MethodOnline,
			Status:            billingdomain.PaymentStatusPaid,
			PaidAt:            paidAt,
			RawVerification:   datatypes.JSON(maskPayload(v.Raw)),
			CreatedAt:         now,
		}
		return g.billingRepo.InsertPayment(ctx, tx, &payment)
	}

	req := intent.CreateRequest(billingdomain.MethodOnline, reference, fmt.Sprintf("Paid online via %s, reference %s.", provider, reference))
	res, err := g.memberships.Create(ctx, req, membershipdomain.WithTxHook(hook))
	if err != nil {
		if errors.Is(err, errAlreadyProcessed) {
			return alreadyProcessed(reference, 0)
		}
		// A concurrent delivery may have committed first and tripped the
		// unique payment reference.
		if existing, lookupErr := g.billingRepo.FindPaidPayment(ctx, g.db, intent.OrgID, provider, identifiers); lookupErr == nil && existing != nil {
			return alreadyProcessed(reference, existing.MembershipID)
		}
		g.log.Error("membership creation from payment failed",
			zap.String("reference", reference),
			zap.String("org_id", intent.OrgID.String()),
			zap.String("member_id", intent.MemberID),
			zap.String("plan_id", intent.PlanID),
			zap.Error(err),
		)
		return failed(reference)
	}

	if res.Existing {
		return alreadyProcessed(reference, res.Membership.ID)
	}
	return paymentdomain.Outcome{
		Kind:         paymentdomain.OutcomeCreated,
		Message:      "Your payment was confirmed and your membership is ready.",
		Reference:    reference,
		MembershipID: res.Membership.ID,
	}
}

func alreadyProcessed(reference string, membershipID snowflake.ID) paymentdomain.Outcome {
	return paymentdomain.Outcome{
		Kind:         paymentdomain.OutcomeAlreadyProcessed,
		Message:      "Your payment was already confirmed and your membership is active.",
		Reference:    reference,
		MembershipID: membershipID,
	}
}

func failed(reference string) paymentdomain.Outcome {
	return paymentdomain.Outcome{
		Kind:      paymentdomain.OutcomeFailed,
		Message:   fmt.Sprintf("We received your payment but could not complete your membership. Please contact support with reference %s.", reference),
		Reference: reference,
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func uniqueNonEmpty(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// maskPayload blanks payer details before the verification is stored.
func maskPayload(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	maskMap(obj)
	masked, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	return masked
}

func maskMap(m map[string]any) {
	for k, v := range m {
		switch strings.ToLower(k) {
		case "card", "customer", "billing_details", "payment_method_details":
			m[k] = "***"
		default:
			if nested, ok := v.(map[string]any); ok {
				maskMap(nested)
			} else if arr, ok := v.([]any); ok {
				for _, item := range arr {
					if itemMap, ok := item.(map[string]any); ok {
						maskMap(itemMap)
					}
				}
			}
		}
	}
}

var _ paymentdomain.CallbackGateway = (*Gateway)(nil)

