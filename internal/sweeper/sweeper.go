// Package sweeper runs the periodic reconciliation pass over module
// subscriptions: period-end cancellations, grace expiries, and optimistic
// writes that never got a webhook confirmation.
package sweeper

import (
	"context"
	"time"

	"github.com/smallbiznis/bizsuite/internal/clock"
	"github.com/smallbiznis/bizsuite/internal/config"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	"github.com/smallbiznis/bizsuite/internal/observability/metrics"
	"github.com/smallbiznis/bizsuite/pkg/lock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// sweepBatchSize bounds one pass so a backlog cannot stall the loop.
	sweepBatchSize = 200

	sweepLockKey = "sweeper:module-subscriptions"
	sweepLockTTL = 2 * time.Minute
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    subdomain.Repository
	Holder  *config.EntitlementConfigHolder
	Locker  *lock.Locker           `optional:"true"`
	Metrics *metrics.EngineMetrics `optional:"true"`
}

type Sweeper struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    subdomain.Repository
	holder  *config.EntitlementConfigHolder
	locker  *lock.Locker
	metrics *metrics.EngineMetrics
}

func New(p Params) *Sweeper {
	return &Sweeper{
		db:      p.DB,
		log:     p.Log.Named("sweeper"),
		clock:   p.Clock,
		repo:    p.Repo,
		holder:  p.Holder,
		locker:  p.Locker,
		metrics: p.Metrics,
	}
}

func (s *Sweeper) RunForever(ctx context.Context) {
	interval := s.holder.Get().SweepInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The interval is hot-reloadable; pick up changes between passes.
		if next := s.holder.Get().SweepInterval; next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

// RunOnce executes a single sweep. With multiple instances the redis lock
// elects one sweeper per pass; a missing lock backend means every instance
// sweeps, which is safe but redundant.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			s.log.Warn("sweep lock unavailable, proceeding", zap.Error(err))
		} else if !ok {
			return nil
		} else {
			defer s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token)
		}
	}

	now := s.clock.Now()
	cfg := s.holder.Get()

	if err := s.cancelExpired(ctx, now); err != nil {
		return err
	}
	s.reportGraceExpiries(ctx, now, cfg.PastDueGraceWindow)
	s.reportUnconfirmedWrites(ctx, now, cfg.ConfirmationWindow)
	return nil
}

// cancelExpired finalizes cancel-at-period-end subscriptions whose period
// has lapsed. No provider event is required for this transition.
func (s *Sweeper) cancelExpired(ctx context.Context, now time.Time) error {
	due, err := s.repo.FindDueForCancel(ctx, s.db, now, sweepBatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		sub := &due[i]
		sub.Status = subdomain.StatusCanceled
		if sub.CanceledAt == nil {
			at := sub.CurrentPeriodEnd
			sub.CanceledAt = &at
		}
		sub.PendingConfirmSince = nil

		if err := s.repo.Update(ctx, s.db, sub); err != nil {
			return err
		}

		s.metrics.RecordSweepTransition("period_end_cancel")
		s.log.Info("subscription canceled at period end",
			zap.Int64("org_id", int64(sub.OrgID)),
			zap.String("module", string(sub.Module)),
			zap.Time("period_end", sub.CurrentPeriodEnd),
		)
	}
	return nil
}

// reportGraceExpiries only logs: the tier change itself happens at
// evaluation time, this is drift visibility for operators.
func (s *Sweeper) reportGraceExpiries(ctx context.Context, now time.Time, graceWindow time.Duration) {
	expired, err := s.repo.FindPastDueSince(ctx, s.db, now.Add(-graceWindow))
	if err != nil {
		s.log.Warn("grace expiry scan failed", zap.Error(err))
		return
	}

	for i := range expired {
		sub := &expired[i]
		s.metrics.RecordSweepTransition("grace_expired")
		s.log.Warn("past-due subscription beyond grace window",
			zap.Int64("org_id", int64(sub.OrgID)),
			zap.String("module", string(sub.Module)),
			zap.Timep("past_due_since", sub.PastDueSince),
		)
	}
}

// reportUnconfirmedWrites flags optimistic local writes that never saw a
// confirming webhook within the confirmation window.
func (s *Sweeper) reportUnconfirmedWrites(ctx context.Context, now time.Time, window time.Duration) {
	stuck, err := s.repo.FindUnconfirmedSince(ctx, s.db, now.Add(-window))
	if err != nil {
		s.log.Warn("unconfirmed write scan failed", zap.Error(err))
		return
	}

	for i := range stuck {
		sub := &stuck[i]
		s.metrics.RecordSweepTransition("unconfirmed_write")
		s.log.Warn("optimistic write without webhook confirmation",
			zap.Int64("org_id", int64(sub.OrgID)),
			zap.String("module", string(sub.Module)),
			zap.String("status", string(sub.Status)),
			zap.Timep("pending_since", sub.PendingConfirmSince),
		)
	}
}
