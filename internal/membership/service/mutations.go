package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"github.com/gymstack/gymstack/internal/calendar"
	"github.com/gymstack/gymstack/internal/effect"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	plandomain "github.com/gymstack/gymstack/internal/plan/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (s *Service) ModifyDates(ctx context.Context, req membershipdomain.ModifyDatesRequest) (*membershipdomain.Membership, error) {
	item, err := s.modifyDates(ctx, req)
	s.observe("modify_dates", item, err)
	return item, err
}

func (s *Service) modifyDates(ctx context.Context, req membershipdomain.ModifyDatesRequest) (*membershipdomain.Membership, error) {
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
	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	var explicitEnd *time.Time
	if !req.AutoDetermineEndDate && req.EndDate != "" {
		end, err := calendar.ParseDate(req.EndDate)
		if err != nil {
			return nil, err
		}
		explicitEnd = &end
	}

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		if !item.IsModifiable() {
			return nil
		}

		prevStart, prevEnd := dateOf(item.StartDate), dateOf(item.EndDate)

		var end *time.Time
		switch {
		case req.AutoDetermineEndDate && prevStart != nil && prevEnd != nil:
			// Keep the current length rather than the plan cycle.
			shifted := calendar.AddDays(start, calendar.DaysBetween(*prevStart, *prevEnd))
			end = &shifted
		case req.AutoDetermineEndDate:
			plan, err := s.planRepo.FindByID(ctx, tx, sc.orgID, item.PlanID)
			if err != nil {
				return err
			}
			if plan == nil {
				return plandomain.ErrPlanNotFound
			}
			derived, err := calendar.DeriveEndDate(plan.CycleDuration, plan.CycleUnit, start)
			if err != nil {
				return err
			}
			end = &derived
		case explicitEnd != nil:
			end = explicitEnd
		default:
			end = prevEnd
		}
		if end != nil && end.Before(start) {
			return membershipdomain.ErrInvalidDateRange
		}

		applyWindow(item, &start, end, sc.loc)
		item.Status = membershipdomain.RecomputeStatusFromDates(item.StartDate, item.EndDate, sc.today)
		// The recomputed status replaces a running hold; close it so the
		// sweep does not put the record back on hold.
		if hold, ok := item.Extension.CurrentHold(sc.today); ok {
			hold.ResumedOn = sc.today.Format(calendar.DateLayout)
			item.Extension.ReplaceHold(hold)
		}
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}

		if strings.TrimSpace(req.Note) != "" {
			detail := fmt.Sprintf("Start %s -> %s, end %s -> %s.",
				formatDate(prevStart), formatDate(item.StartDate), formatDate(prevEnd), formatDate(item.EndDate))
			if err := s.appendNote(ctx, tx, item, auditdomain.CategoryDates, "Membership dates modified", joinNote(detail, req.Note)); err != nil {
				return err
			}
		}

		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ModifyLimits(ctx context.Context, req membershipdomain.ModifyLimitsRequest) (*membershipdomain.Membership, error) {
	item, err := s.modifyLimits(ctx, req)
	s.observe("modify_limits", item, err)
	return item, err
}

func (s *Service) modifyLimits(ctx context.Context, req membershipdomain.ModifyLimitsRequest) (*membershipdomain.Membership, error) {
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

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		if !item.IsModifiable() {
			return nil
		}

		if req.NumberOfClasses != nil {
			if *req.NumberOfClasses == 0 {
				item.TotalQuota = nil
			} else {
				quota := *req.NumberOfClasses
				item.TotalQuota = &quota
			}
		}
		item.Extension.MergeLimits(membershipdomain.Limits{
			AllowSharing:         req.AllowSharing,
			AllowHolds:           req.AllowHolds,
			NumberOfHoldsAllowed: req.NumberOfHoldsAllowed,
			HoldDays:             req.HoldDays,
		})
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}

		if strings.TrimSpace(req.Note) != "" {
			quota := "unlimited"
			if item.TotalQuota != nil {
				quota = fmt.Sprintf("%d", *item.TotalQuota)
			}
			detail := fmt.Sprintf("Class quota %s.", quota)
			if err := s.appendNote(ctx, tx, item, auditdomain.CategoryLimits, "Membership limits modified", joinNote(detail, req.Note)); err != nil {
				return err
			}
		}

		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Hold(ctx context.Context, req membershipdomain.HoldRequest) (*membershipdomain.Membership, error) {
	item, err := s.hold(ctx, req)
	s.observe("hold", item, err)
	return item, err
}

func (s *Service) hold(ctx context.Context, req membershipdomain.HoldRequest) (*membershipdomain.Membership, error) {
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
	holdStart, err := calendar.ParseDate(req.HoldStartDate)
	if err != nil {
		return nil, err
	}
	holdEnd, err := calendar.ParseDate(req.HoldEndDate)
	if err != nil {
		return nil, err
	}
	if !holdEnd.After(holdStart) {
		return nil, membershipdomain.ErrInvalidHoldRange
	}

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		if !item.CanHold() {
			return nil
		}
		if item.Extension.OverlapsHold(holdStart, holdEnd) {
			return nil
		}

		// The end date is the resume date and is not a held day.
		days := calendar.DaysBetween(holdStart, holdEnd)
		entry := membershipdomain.HoldEntry{
			ID:           ulid.Make().String(),
			StartDate:    holdStart.Format(calendar.DateLayout),
			EndDate:      holdEnd.Format(calendar.DateLayout),
			DurationDays: days,
			Reason:       strings.TrimSpace(req.Reason),
			AutoResume:   req.AutoResume,
			CreatedAt:    sc.now,
		}

		if item.EndDate != nil {
			extended := calendar.AddDays(*item.EndDate, days)
			applyWindow(item, dateOf(item.StartDate), &extended, sc.loc)
		}
		if !sc.today.Before(holdStart) && sc.today.Before(holdEnd) {
			item.Status = membershipdomain.StatusHold
		}
		item.Extension.AppendHold(entry)
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}

		if strings.TrimSpace(req.Note) != "" {
			detail := fmt.Sprintf("Hold %s to %s (%d days). End date now %s.",
				entry.StartDate, entry.EndDate, days, formatDate(item.EndDate))
			if err := s.appendNote(ctx, tx, item, auditdomain.CategoryHold, "Membership placed on hold", joinNote(detail, req.Note)); err != nil {
				return err
			}
		}

		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Resume(ctx context.Context, req membershipdomain.ResumeRequest) (*membershipdomain.Membership, error) {
	item, err := s.resume(ctx, req)
	s.observe("resume", item, err)
	return item, err
}

func (s *Service) resume(ctx context.Context, req membershipdomain.ResumeRequest) (*membershipdomain.Membership, error) {
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

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		if !item.IsModifiable() || item.Status != membershipdomain.StatusHold {
			return nil
		}

		unused := 0
		entry, ok := item.Extension.CurrentHold(sc.today)
		if !ok {
			entry, ok = item.Extension.LatestOpenHold()
		}
		if ok {
			if _, holdEnd, err := entry.Window(); err == nil {
				unused = max(0, min(calendar.DaysBetween(sc.today, holdEnd), entry.DurationDays))
			}
			entry.ResumedOn = sc.today.Format(calendar.DateLayout)
			item.Extension.ReplaceHold(entry)
		}

		if unused > 0 && item.EndDate != nil {
			start := dateOf(item.StartDate)
			shortened := calendar.AddDays(*item.EndDate, -unused)
			if start != nil && shortened.Before(*start) {
				shortened = *start
			}
			applyWindow(item, start, &shortened, sc.loc)
		}
		item.Status = membershipdomain.RecomputeStatusFromDates(dateOf(item.StartDate), dateOf(item.EndDate), sc.today)
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}

		if strings.TrimSpace(req.Note) != "" {
			detail := fmt.Sprintf("Resumed with %d unused hold days returned. End date now %s.", unused, formatDate(item.EndDate))
			if err := s.appendNote(ctx, tx, item, auditdomain.CategoryHold, "Membership resumed", joinNote(detail, req.Note)); err != nil {
				return err
			}
		}

		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Cancel(ctx context.Context, req membershipdomain.CancelRequest) (*membershipdomain.Membership, error) {
	item, err := s.cancel(ctx, req)
	s.observe("cancel", item, err)
	return item, err
}

func (s *Service) cancel(ctx context.Context, req membershipdomain.CancelRequest) (*membershipdomain.Membership, error) {
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

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		switch {
		case item.IsDeleted || item.Status == membershipdomain.StatusDeleted:
			return membershipdomain.ErrMembershipDeleted
		case item.IsCanceled:
			return membershipdomain.ErrMembershipAlreadyCanceled
		case !item.IsModifiable():
			return membershipdomain.ErrMembershipNotCancelable
		}

		canceledAt := sc.now
		if req.CanceledAt != nil {
			canceledAt = req.CanceledAt.UTC()
		}
		item.Status = membershipdomain.StatusCanceled
		item.IsCanceled = true
		item.CanceledAt = &canceledAt
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("Canceled effective %s.", out.CanceledAt.Format(time.RFC3339))
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		detail += " Reason: " + reason + "."
	}
	effect.BestEffort(s.log, "membership.cancel.note", func() error {
		return s.appendNote(ctx, nil, out, auditdomain.CategoryCancellation, "Membership canceled", joinNote(detail, req.Note))
	})

	return out, nil
}

func (s *Service) Upgrade(ctx context.Context, req membershipdomain.UpgradeRequest) (*membershipdomain.Membership, error) {
	item, err := s.upgrade(ctx, req)
	s.observe("upgrade", item, err)
	return item, err
}

func (s *Service) upgrade(ctx context.Context, req membershipdomain.UpgradeRequest) (*membershipdomain.Membership, error) {
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
	planID, err := parseID(req.PlanID, membershipdomain.ErrInvalidPlan)
	if err != nil {
		return nil, err
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if req.PaidUpgrade {
		if req.UpgradeFee == nil || req.UpgradeFee.IsNegative() {
			return nil, membershipdomain.ErrInvalidUpgradeFee
		}
		if method != "" && !billingdomain.IsValidPaymentMethod(method) {
			return nil, membershipdomain.ErrInvalidPaymentMethod
		}
	}

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		if !item.IsModifiable() {
			return nil
		}

		plan, err := s.planRepo.FindByID(ctx, tx, sc.orgID, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		previous := item.Name
		applyPlanSnapshot(item, plan)
		item.DiscountID, item.DiscountValue, item.DiscountUnit = nil, nil, nil

		if req.PaidUpgrade {
			fee := req.UpgradeFee.Round(2)
			item.InvoiceTotal = fee
			item.InvoiceTotalPaid = fee
			item.InvoiceStatus = billingdomain.InvoiceStatusPaid
			if method != "" {
				item.InvoiceMethod = method
			}
			item.InvoiceReceipt = strings.TrimSpace(req.ReceiptReference)
		} else {
			item.InvoiceTotal = plan.Price.Round(2)
			item.InvoiceTotalPaid = decimal.Zero
			if plan.Price.IsZero() {
				item.InvoiceStatus = billingdomain.InvoiceStatusFree
			} else {
				item.InvoiceStatus = billingdomain.InvoiceStatusPending
			}
		}
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}

		if strings.TrimSpace(req.Note) != "" {
			detail := fmt.Sprintf("Upgraded from %s to %s. Invoice %s %s (%s).",
				previous, plan.Name, item.InvoiceTotal.StringFixed(2), item.InvoiceCurrency, item.InvoiceStatus)
			if err := s.appendNote(ctx, tx, item, auditdomain.CategoryUpgrade, "Membership upgraded", joinNote(detail, req.Note)); err != nil {
				return err
			}
		}

		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Reinstate(ctx context.Context, req membershipdomain.ReinstateRequest) (*membershipdomain.Membership, error) {
	item, err := s.reinstate(ctx, req)
	s.observe("reinstate", item, err)
	return item, err
}

func (s *Service) reinstate(ctx context.Context, req membershipdomain.ReinstateRequest) (*membershipdomain.Membership, error) {
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

	var out *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockMembership(ctx, tx, sc.orgID, id)
		if err != nil {
			return err
		}
		if !item.IsCanceled || item.IsDeleted || item.Status == membershipdomain.StatusDeleted {
			return nil
		}

		item.Status = membershipdomain.RecomputeStatusFromDates(dateOf(item.StartDate), dateOf(item.EndDate), sc.today)
		item.IsCanceled = false
		item.CanceledAt = nil
		item.UpdatedAt = sc.now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}

		if strings.TrimSpace(req.Note) != "" {
			detail := fmt.Sprintf("Reinstated as %s.", item.Status)
			if err := s.appendNote(ctx, tx, item, auditdomain.CategoryReinstate, "Membership reinstated", joinNote(detail, req.Note)); err != nil {
				return err
			}
		}

		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
