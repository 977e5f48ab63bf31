package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gymstack/gymstack/internal/calendar"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSweepBatchSize = 200

// nextSweepStatus is the status the scheduler moves item to. It returns
// the hold entry to stamp as resumed when an auto-resuming hold has run out.
func nextSweepStatus(item *membershipdomain.Membership, today time.Time) (membershipdomain.Status, *membershipdomain.HoldEntry) {
	start, end := dateOf(item.StartDate), dateOf(item.EndDate)

	switch item.Status {
	case membershipdomain.StatusHold:
		hold, ok := item.Extension.LatestOpenHold()
		if !ok || !hold.AutoResume {
			return item.Status, nil
		}
		_, holdEnd, err := hold.Window()
		if err != nil || today.Before(holdEnd) {
			return item.Status, nil
		}
		hold.ResumedOn = holdEnd.Format(calendar.DateLayout)
		return membershipdomain.RecomputeStatusFromDates(start, end, today), &hold
	case membershipdomain.StatusUpcoming, membershipdomain.StatusActive:
		if _, ok := item.Extension.CurrentHold(today); ok {
			return membershipdomain.StatusHold, nil
		}
		return membershipdomain.RecomputeStatusFromDates(start, end, today), nil
	default:
		return item.Status, nil
	}
}

func (s *Service) SweepStatuses(ctx context.Context, batchSize int) (membershipdomain.SweepResult, error) {
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	res := membershipdomain.SweepResult{Transitions: map[string]int{}}
	now := s.clock.Now(ctx)
	locations := make(map[snowflake.ID]*time.Location)

	var afterID snowflake.ID
	for {
		items, err := s.repo.ListSweepCandidates(ctx, s.db, afterID, batchSize)
		if err != nil {
			return res, err
		}

		for i := range items {
			item := &items[i]
			afterID = item.ID
			res.Scanned++

			loc, ok := locations[item.OrgID]
			if !ok {
				loc, err = s.orgLocation(ctx, item.OrgID)
				if err != nil {
					s.log.Warn("sweep skipped organization", zap.String("org_id", item.OrgID.String()), zap.Error(err))
					res.Failed++
					res.FailedIDs = append(res.FailedIDs, item.ID)
					continue
				}
				locations[item.OrgID] = loc
			}
			today := calendar.Today(now, loc)

			if next, _ := nextSweepStatus(item, today); next == item.Status {
				continue
			}

			from, to, err := s.sweepOne(ctx, item.OrgID, item.ID, today, now)
			if err != nil {
				s.log.Warn("sweep failed", zap.String("membership_id", item.ID.String()), zap.Error(err))
				res.Failed++
				res.FailedIDs = append(res.FailedIDs, item.ID)
				continue
			}
			if from != to {
				res.Updated++
				res.Transitions[string(from)+"->"+string(to)]++
			}
		}

		if len(items) < batchSize {
			break
		}
	}

	s.metrics.ObserveOperation("sweep", "ok")
	s.log.Info("status sweep finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// sweepOne re-reads the row under lock so a concurrent administrative
// action is never overwritten with a stale decision.
func (s *Service) sweepOne(ctx context.Context, orgID, id snowflake.ID, today, now time.Time) (membershipdomain.Status, membershipdomain.Status, error) {
	var from, to membershipdomain.Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil || item == nil {
			return err
		}
		from, to = item.Status, item.Status
		if !item.IsModifiable() {
			return nil
		}

		next, resumed := nextSweepStatus(item, today)
		if next == item.Status {
			return nil
		}
		if resumed != nil {
			item.Extension.ReplaceHold(*resumed)
		}
		item.Status = next
		item.UpdatedAt = now
		to = next

		return s.repo.Update(ctx, tx, item)
	})
	return from, to, err
}
