package scheduler

import (
	"context"

	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PurgeVerificationPayloadsJob clears raw provider verifications from
// payments settled before the retention window. The payment row itself is
// kept.
func (s *Scheduler) PurgeVerificationPayloadsJob(ctx context.Context) error {
	retentionDays := s.cfg.PaymentRawRetentionDays
	if retentionDays <= 0 {
		s.log.Debug("payment payload retention disabled", zap.Int("days", retentionDays))
		return nil
	}

	cutoff := s.clock.Now(ctx).AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).
		Model(&billingdomain.Payment{}).
		Where("paid_at < ? AND raw_verification IS NOT NULL", cutoff).
		Update("raw_verification", gorm.Expr("NULL"))
	if result.Error != nil {
		return result.Error
	}

	s.log.Info("payment payload retention completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("purged", result.RowsAffected),
	)
	return nil
}
