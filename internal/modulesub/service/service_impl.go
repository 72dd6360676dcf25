package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"github.com/smallbiznis/bizsuite/internal/clock"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	providerpayment "github.com/smallbiznis/bizsuite/internal/providers/payment"
	"github.com/smallbiznis/bizsuite/pkg/lock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// applyLockTTL bounds the cross-instance lock held while applying one event.
const applyLockTTL = 10 * time.Second

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subdomain.Repository
	provider providerpayment.Provider
	mutex    *lock.KeyedMutex
	locker   *lock.Locker
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subdomain.Repository
	Provider providerpayment.Provider
	Mutex    *lock.KeyedMutex
	Locker   *lock.Locker `optional:"true"`
}

func NewService(p ServiceParam) subdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("modulesub.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		provider: p.Provider,
		mutex:    p.Mutex,
		locker:   p.Locker,
	}
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, orgID snowflake.ID, module catalog.Module) (*subdomain.ModuleSubscription, error) {
	if _, ok := catalog.ParseModule(string(module)); !ok {
		return nil, subdomain.ErrInvalidModule
	}
	return s.repo.Find(ctx, s.db, orgID, module)
}

// List implements domain.Service.
func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]subdomain.ModuleSubscription, error) {
	return s.repo.List(ctx, s.db, orgID)
}

// ApplyEvent implements domain.Service. Writes for one (org, module) pair are
// serialized by the keyed mutex plus a row lock inside the transaction; the
// redis lock only shortens cross-instance contention and is not required for
// correctness.
func (s *Service) ApplyEvent(ctx context.Context, req subdomain.ApplyEventRequest) error {
	if _, ok := catalog.ParseModule(string(req.Module)); !ok {
		return subdomain.ErrInvalidModule
	}
	if !validStatus(req.Status) {
		return subdomain.ErrInvalidStatus
	}

	key := fmt.Sprintf("modulesub:%d:%s", req.OrgID, req.Module)
	s.mutex.Lock(key)
	defer s.mutex.Unlock(key)

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, key, applyLockTTL)
		if err != nil {
			s.log.Warn("redis lock unavailable, relying on row lock", zap.Error(err))
		} else if ok {
			defer s.locker.Release(context.WithoutCancel(ctx), key, token)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindForUpdate(ctx, tx, req.OrgID, req.Module)
		if err != nil && !errors.Is(err, subdomain.ErrNotFound) {
			return err
		}

		now := s.clock.Now()
		if existing == nil {
			sub := s.subscriptionFromEvent(req, now)
			if err := s.repo.Insert(ctx, tx, sub); err != nil {
				return err
			}
			s.log.Info("module subscription created from event",
				zap.Int64("org_id", int64(req.OrgID)),
				zap.String("module", string(req.Module)),
				zap.String("status", string(req.Status)),
				zap.Int64("sequence", req.Sequence),
			)
			return nil
		}

		if req.Sequence <= existing.EventSequence {
			s.log.Info("stale subscription event skipped",
				zap.Int64("org_id", int64(req.OrgID)),
				zap.String("module", string(req.Module)),
				zap.Int64("sequence", req.Sequence),
				zap.Int64("applied_sequence", existing.EventSequence),
			)
			return subdomain.ErrStaleEvent
		}

		s.applyEventTo(existing, req, now)
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return err
		}
		s.log.Info("module subscription updated from event",
			zap.Int64("org_id", int64(req.OrgID)),
			zap.String("module", string(req.Module)),
			zap.String("status", string(existing.Status)),
			zap.Int64("sequence", req.Sequence),
		)
		return nil
	})
}

func (s *Service) subscriptionFromEvent(req subdomain.ApplyEventRequest, now time.Time) *subdomain.ModuleSubscription {
	sub := &subdomain.ModuleSubscription{
		ID:                     s.genID.Generate(),
		OrgID:                  req.OrgID,
		Module:                 req.Module,
		PlanTier:               req.PlanTier,
		BillingCycle:           req.BillingCycle,
		ExternalSubscriptionID: req.ExternalSubscriptionID,
	}
	if sub.PlanTier == "" {
		sub.PlanTier = catalog.PlanPro
	}
	if sub.BillingCycle == "" {
		sub.BillingCycle = subdomain.BillingCycleMonthly
	}
	s.applyEventTo(sub, req, now)
	return sub
}

func (s *Service) applyEventTo(sub *subdomain.ModuleSubscription, req subdomain.ApplyEventRequest, now time.Time) {
	sub.Status = req.Status
	sub.EventSequence = req.Sequence
	sub.CancelAtPeriodEnd = req.CancelAtPeriodEnd
	// Webhook-confirmed state supersedes any optimistic local write.
	sub.PendingConfirmSince = nil

	if req.PlanTier != "" {
		sub.PlanTier = req.PlanTier
	}
	if req.BillingCycle != "" {
		sub.BillingCycle = req.BillingCycle
	}
	if req.ExternalSubscriptionID != "" {
		sub.ExternalSubscriptionID = req.ExternalSubscriptionID
	}
	if !req.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = req.CurrentPeriodStart
	}
	if !req.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = req.CurrentPeriodEnd
	}

	switch req.Status {
	case subdomain.StatusPastDue:
		if sub.PastDueSince == nil {
			since := now
			sub.PastDueSince = &since
		}
	case subdomain.StatusCanceled:
		if sub.CanceledAt == nil {
			at := now
			if req.EffectiveCancelAt != nil {
				at = *req.EffectiveCancelAt
			}
			sub.CanceledAt = &at
		}
		sub.PastDueSince = nil
	default:
		sub.PastDueSince = nil
		sub.CanceledAt = nil
	}
}

// Cancel implements domain.Service. The provider call comes first: on
// provider failure nothing changes locally, keeping the two sides
// all-or-nothing. The local write is optimistic and webhook-confirmed later.
func (s *Service) Cancel(ctx context.Context, orgID snowflake.ID, module catalog.Module, atPeriodEnd bool) error {
	sub, err := s.repo.Find(ctx, s.db, orgID, module)
	if err != nil {
		return err
	}
	if sub.Status == subdomain.StatusCanceled {
		return subdomain.ErrNotCancelable
	}
	if sub.ExternalSubscriptionID == "" {
		return subdomain.ErrNoExternalSubscription
	}

	if err := s.provider.CancelSubscription(ctx, sub.ExternalSubscriptionID, atPeriodEnd); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindForUpdate(ctx, tx, orgID, module)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		current.PendingConfirmSince = &now
		if atPeriodEnd {
			current.CancelAtPeriodEnd = true
		} else {
			current.Status = subdomain.StatusCanceled
			current.CanceledAt = &now
		}
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		s.log.Info("module subscription cancel requested",
			zap.Int64("org_id", int64(orgID)),
			zap.String("module", string(module)),
			zap.Bool("at_period_end", atPeriodEnd),
		)
		return nil
	})
}

// Resume implements domain.Service.
func (s *Service) Resume(ctx context.Context, orgID snowflake.ID, module catalog.Module) error {
	sub, err := s.repo.Find(ctx, s.db, orgID, module)
	if err != nil {
		return err
	}
	if sub.Status == subdomain.StatusCanceled || !sub.CancelAtPeriodEnd {
		return subdomain.ErrNotResumable
	}
	if sub.ExternalSubscriptionID == "" {
		return subdomain.ErrNoExternalSubscription
	}

	if err := s.provider.ResumeSubscription(ctx, sub.ExternalSubscriptionID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindForUpdate(ctx, tx, orgID, module)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		current.CancelAtPeriodEnd = false
		current.PendingConfirmSince = &now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		s.log.Info("module subscription resume requested",
			zap.Int64("org_id", int64(orgID)),
			zap.String("module", string(module)),
		)
		return nil
	})
}

// ConfirmCheckout implements domain.Service. The row it writes is
// provisional: the period bounds are estimates until the provider webhook
// overwrites them.
func (s *Service) ConfirmCheckout(ctx context.Context, req subdomain.ConfirmCheckoutRequest) error {
	if _, ok := catalog.ParseModule(string(req.Module)); !ok {
		return subdomain.ErrInvalidModule
	}
	if req.BillingCycle != subdomain.BillingCycleMonthly && req.BillingCycle != subdomain.BillingCycleYearly {
		return subdomain.ErrInvalidBillingCycle
	}

	key := fmt.Sprintf("modulesub:%d:%s", req.OrgID, req.Module)
	s.mutex.Lock(key)
	defer s.mutex.Unlock(key)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		status := subdomain.StatusActive
		if req.Trial {
			status = subdomain.StatusTrialing
		}

		periodEnd := now.AddDate(0, 1, 0)
		if req.BillingCycle == subdomain.BillingCycleYearly {
			periodEnd = now.AddDate(1, 0, 0)
		}

		existing, err := s.repo.FindForUpdate(ctx, tx, req.OrgID, req.Module)
		if err != nil && !errors.Is(err, subdomain.ErrNotFound) {
			return err
		}

		if existing == nil {
			existing = &subdomain.ModuleSubscription{
				ID:     s.genID.Generate(),
				OrgID:  req.OrgID,
				Module: req.Module,
			}
		}

		existing.PlanTier = req.PlanTier
		if existing.PlanTier == "" {
			existing.PlanTier = catalog.PlanPro
		}
		existing.Status = status
		existing.BillingCycle = req.BillingCycle
		existing.CurrentPeriodStart = now
		existing.CurrentPeriodEnd = periodEnd
		existing.CancelAtPeriodEnd = false
		existing.CanceledAt = nil
		existing.PastDueSince = nil
		existing.ExternalSubscriptionID = req.ExternalSubscriptionID
		existing.PendingConfirmSince = &now

		if existing.CreatedAt.IsZero() {
			if err := s.repo.Insert(ctx, tx, existing); err != nil {
				return err
			}
		} else if err := s.repo.Update(ctx, tx, existing); err != nil {
			return err
		}

		s.log.Info("checkout confirmed",
			zap.Int64("org_id", int64(req.OrgID)),
			zap.String("module", string(req.Module)),
			zap.String("status", string(status)),
		)
		return nil
	})
}

func validStatus(status subdomain.Status) bool {
	switch status {
	case subdomain.StatusTrialing, subdomain.StatusActive, subdomain.StatusPastDue,
		subdomain.StatusPaused, subdomain.StatusCanceled:
		return true
	}
	return false
}
