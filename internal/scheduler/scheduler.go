// Package scheduler runs the periodic maintenance jobs: the membership
// status sweep and payment payload retention.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gymstack/gymstack/internal/clock"
	"github.com/gymstack/gymstack/internal/config"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultInterval = 15 * time.Minute
	sweepBatchSize  = 200
)

// StatusSweeper is the part of the membership service the scheduler drives.
type StatusSweeper interface {
	SweepStatuses(ctx context.Context, batchSize int) (membershipdomain.SweepResult, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Clock       clock.Clock
	Memberships membershipdomain.Service
	Redis       *redis.Client `optional:"true"`
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	clock    clock.Clock
	sweeper  StatusSweeper
	locker   *locker
	interval time.Duration
}

func New(p Params) *Scheduler {
	return newScheduler(p.DB, p.Log, p.Cfg, p.Clock, p.Memberships, p.Redis)
}

func newScheduler(db *gorm.DB, log *zap.Logger, cfg config.Config, clk clock.Clock, sweeper StatusSweeper, client *redis.Client) *Scheduler {
	interval := cfg.SchedulerInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	s := &Scheduler{
		db:       db,
		log:      log.Named("scheduler"),
		cfg:      cfg,
		clock:    clk,
		sweeper:  sweeper,
		interval: interval,
	}
	if client != nil {
		s.locker = &locker{client: client, owner: uuid.NewString()}
	}
	return s
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: "membership_status_sweep", run: s.SweepMembershipStatusesJob},
		{name: "payment_payload_retention", run: s.PurgeVerificationPayloadsJob},
	}
}

// RunForever runs every job once immediately and then on each tick until
// ctx is canceled.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs each job in turn. A failing job is logged and does not stop
// the ones after it.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, j := range s.jobs() {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, j)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	// Every row in one run is judged against the same instant.
	ctx = clock.WithNow(ctx, s.clock.Now(ctx))

	if s.locker != nil {
		release, ok, err := s.locker.acquire(ctx, j.name, s.interval)
		if err != nil {
			s.log.Warn("scheduler lock unavailable, running unlocked", zap.String("job", j.name), zap.Error(err))
		} else if !ok {
			s.log.Debug("job held by another instance", zap.String("job", j.name))
			return
		} else {
			defer release()
		}
	}

	started := time.Now()
	s.log.Info("job started", zap.String("job", j.name))
	if err := j.run(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", j.name), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return
	}
	s.log.Info("job finished", zap.String("job", j.name), zap.Duration("elapsed", time.Since(started)))
}
