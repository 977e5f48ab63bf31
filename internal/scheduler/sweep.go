package scheduler

import (
	"context"

	"go.uber.org/zap"
)

func (s *Scheduler) SweepMembershipStatusesJob(ctx context.Context) error {
	res, err := s.sweeper.SweepStatuses(ctx, sweepBatchSize)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int("scanned", res.Scanned),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	}
	for transition, n := range res.Transitions {
		fields = append(fields, zap.Int(transition, n))
	}
	if res.Failed > 0 {
		ids := make([]string, 0, len(res.FailedIDs))
		for _, id := range res.FailedIDs {
			ids = append(ids, id.String())
		}
		fields = append(fields, zap.Strings("failed_ids", ids))
		s.log.Warn("membership status sweep completed with failures", fields...)
		return nil
	}
	s.log.Info("membership status sweep completed", fields...)
	return nil
}
