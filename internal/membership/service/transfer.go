package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"github.com/gymstack/gymstack/internal/calendar"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"github.com/gymstack/gymstack/internal/orgcontext"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// proration splits a membership window at today. Day counts exclude the
// end date.
type proration struct {
	TotalDays     int
	UsedDays      int
	RemainingDays int
	Price         decimal.Decimal
}

func computeProration(start, end, today time.Time, price decimal.Decimal) proration {
	total := calendar.DaysBetween(start, end)
	used := max(0, calendar.DaysBetween(start, today))
	remaining := max(0, total-used)

	p := proration{TotalDays: total, UsedDays: used, RemainingDays: remaining, Price: decimal.Zero}
	if total > 0 {
		p.Price = price.Mul(decimal.NewFromInt(int64(remaining))).Div(decimal.NewFromInt(int64(total))).Round(2)
	}
	return p
}

func (s *Service) Transfer(ctx context.Context, req membershipdomain.TransferRequest) (*membershipdomain.Membership, error) {
	item, err := s.transfer(ctx, req)
	s.observe("transfer", item, err)
	return item, err
}

func (s *Service) transfer(ctx context.Context, req membershipdomain.TransferRequest) (*membershipdomain.Membership, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	sc, err := s.resolveScope(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.MembershipID, membershipdomain.ErrInvalidMembership)
	if err != nil {
		return nil, err
	}
	toMemberID, err := parseID(req.ToMemberID, membershipdomain.ErrTransferTargetNotFound)
	if err != nil {
		return nil, err
	}

	method := strings.TrimSpace(req.PaymentMethod)
	fee := decimal.Zero
	if req.PaidTransfer {
		if req.TransferFee == nil || !req.TransferFee.IsPositive() {
			return nil, membershipdomain.ErrInvalidTransferFee
		}
		if !billingdomain.IsValidPaymentMethod(method) {
			return nil, membershipdomain.ErrInvalidPaymentMethod
		}
		fee = req.TransferFee.Round(2)
	}

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		switch {
		case item.IsDeleted || item.Status == membershipdomain.StatusDeleted:
			return membershipdomain.ErrMembershipDeleted
		case item.IsCanceled || item.Status == membershipdomain.StatusCanceled:
			return membershipdomain.ErrMembershipAlreadyCanceled
		}

		target, err := s.memberRepo.FindByIDForUpdate(ctx, tx, sc.orgID, toMemberID)
		if err != nil {
			return err
		}
		if target == nil || target.IsDeleted {
			return membershipdomain.ErrTransferTargetNotFound
		}
		if target.ID == item.MemberID {
			return membershipdomain.ErrTransferSameMember
		}
		if target.IsArchived() {
			return membershipdomain.ErrTransferTargetArchived
		}

		live, err := s.repo.FindLive(ctx, tx, sc.orgID, target.ID, item.PlanID)
		if err != nil {
			return err
		}
		if live != nil {
			return membershipdomain.ErrTransferTargetHasMembership
		}

		if req.CreateNewPlanAndProRate {
			created, err := s.prorateTransfer(ctx, tx, sc, item, target, fee, method, req)
			if err != nil {
				return err
			}
			out = created
			return nil
		}

		previousOwner := item.MemberID
		item.MemberID = target.ID
		if req.PaidTransfer {
			item.InvoiceTotal = item.InvoiceTotal.Add(fee)
			item.InvoiceTotalPaid = item.InvoiceTotalPaid.Add(fee)
			item.InvoiceMethod = method
			item.InvoiceReceipt = strings.TrimSpace(req.ReceiptReference)
		}
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}

		detail := fmt.Sprintf("Transferred from member %s to member %s.", previousOwner, target.ID)
		if req.PaidTransfer {
			detail += fmt.Sprintf(" Transfer fee %s paid by %s.", fee.StringFixed(2), method)
		}
		if err := s.appendNote(ctx, tx, item, auditdomain.CategoryTransfer, "Membership transferred", joinNote(detail, req.Note)); err != nil {
			return err
		}

		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// prorateTransfer cancels item as of today and creates a membership for
// target covering the remaining days at the pro-rated price.
func (s *Service) prorateTransfer(
	ctx context.Context,
	tx *gorm.DB,
	sc scope,
	item *membershipdomain.Membership,
	target *memberdomain.Member,
	fee decimal.Decimal,
	method string,
	req membershipdomain.TransferRequest,
) (*membershipdomain.Membership, error) {
	start, end := dateOf(item.StartDate), dateOf(item.EndDate)
	if start == nil || end == nil {
		return nil, membershipdomain.ErrTransferMissingDates
	}
	split := computeProration(*start, *end, sc.today, item.Price)
	if split.RemainingDays <= 0 {
		return nil, membershipdomain.ErrTransferNoRemainingDays
	}
	if !item.Price.IsPositive() {
		return nil, membershipdomain.ErrTransferInvalidPrice
	}

	newStart := sc.today
	if start.After(sc.today) {
		newStart = *start
	}

	total := split.Price.Add(fee)
	dueAt := sc.now.Add(invoiceDueAfter)
	currency := item.InvoiceCurrency
	if currency == "" {
		currency = item.Currency
	}
	invoiceMethod := item.InvoiceMethod
	receipt := item.InvoiceReceipt
	if req.PaidTransfer {
		invoiceMethod = method
		receipt = strings.TrimSpace(req.ReceiptReference)
	}

	created := membershipdomain.Membership{
		ID:               s.genID.Generate(),
		UUID:             uuid.NewString(),
		OrgID:            item.OrgID,
		MemberID:         target.ID,
		PlanID:           item.PlanID,
		Name:             item.Name,
		Type:             item.Type,
		Venue:            item.Venue,
		Price:            split.Price,
		PricePerSession:  item.PricePerSession,
		Currency:         item.Currency,
		TotalQuota:       item.TotalQuota,
		DailyQuota:       item.DailyQuota,
		InvoiceTotal:     total,
		InvoiceTotalPaid: total,
		InvoiceCurrency:  currency,
		InvoiceDueAt:     &dueAt,
		InvoiceStatus:    billingdomain.InvoiceStatusPaid,
		InvoiceMethod:    invoiceMethod,
		InvoiceReceipt:   receipt,
		CreatedBy:        orgcontext.ActorID(ctx),
		SoldBy:           item.SoldBy,
		CreatedAt:        sc.now,
		UpdatedAt:        sc.now,
	}
	if item.Extension.Limits != nil {
		limits := *item.Extension.Limits
		created.Extension.Limits = &limits
	}
	applyWindow(&created, &newStart, end, sc.loc)
	created.Status = membershipdomain.RecomputeStatusFromDates(created.StartDate, created.EndDate, sc.today)

	// The original keeps its price; only its window closes.
	cutoff := sc.today
	if start.After(cutoff) {
		cutoff = *start
	}
	canceledAt := sc.now
	applyWindow(item, start, &cutoff, sc.loc)
	item.Status = membershipdomain.StatusCanceled
	item.IsCanceled = true
	item.CanceledAt = &canceledAt
	item.UpdatedAt = sc.now

	if err := s.repo.Update(ctx, tx, item); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, tx, &created); err != nil {
		return nil, err
	}

	splitDetail := fmt.Sprintf("%d of %d days remaining, pro-rated price %s of %s %s.",
		split.RemainingDays, split.TotalDays, split.Price.StringFixed(2), item.Price.StringFixed(2), item.Currency)
	if req.PaidTransfer {
		splitDetail += fmt.Sprintf(" Transfer fee %s paid by %s.", fee.StringFixed(2), method)
	}

	originalDetail := fmt.Sprintf("Pro-rated transfer to member %s as membership %s. Ended %s. %s",
		target.ID, created.ID, formatDate(item.EndDate), splitDetail)
	if err := s.appendNote(ctx, tx, item, auditdomain.CategoryTransfer, "Membership transferred", joinNote(originalDetail, req.Note)); err != nil {
		return nil, err
	}

	createdDetail := fmt.Sprintf("Created by pro-rated transfer of membership %s from member %s. Runs %s to %s. %s",
		item.ID, item.MemberID, formatDate(created.StartDate), formatDate(created.EndDate), splitDetail)
	if err := s.appendNote(ctx, tx, &created, auditdomain.CategoryTransfer, "Membership received by transfer", joinNote(createdDetail, req.Note)); err != nil {
		return nil, err
	}

	return &created, nil
}
