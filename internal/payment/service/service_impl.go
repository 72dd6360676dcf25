package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service reconciles provider subscription events into the module
// subscription store. Processing is idempotent: the seen-event insert comes
// first, so a retried delivery can never double-apply.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	repo   paymentdomain.Repository
	subSvc subdomain.Service
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   paymentdomain.Repository
	SubSvc subdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.reconciler"),
		genID: p.GenID,

		repo:   p.Repo,
		subSvc: p.SubSvc,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.SubscriptionEvent, payload []byte) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	now := time.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		OrgID:           event.OrgID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Module:          event.Module,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.applyEvent(ctx, event, payload); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	return nil
}

func (s *Service) applyEvent(ctx context.Context, event *paymentdomain.SubscriptionEvent, payload []byte) error {
	// The audit log row goes in before the store mutation so an accepted
	// event is traceable even if application fails and is retried.
	logEntry := paymentdomain.SubscriptionEventLog{
		ID:              s.genID.Generate(),
		OrgID:           event.OrgID,
		Module:          event.Module,
		Sequence:        event.Sequence,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Status:          string(event.Status),
		Payload:         datatypes.JSON(payload),
		OccurredAt:      event.OccurredAt,
	}
	if err := s.repo.AppendLog(ctx, s.db, &logEntry); err != nil {
		return err
	}

	err := s.subSvc.ApplyEvent(ctx, subdomain.ApplyEventRequest{
		OrgID:                  event.OrgID,
		Module:                 event.Module,
		PlanTier:               event.PlanTier,
		Status:                 event.Status,
		BillingCycle:           event.BillingCycle,
		CurrentPeriodStart:     event.CurrentPeriodStart,
		CurrentPeriodEnd:       event.CurrentPeriodEnd,
		CancelAtPeriodEnd:      event.CancelAtPeriodEnd,
		EffectiveCancelAt:      event.EffectiveCancelAt,
		ExternalSubscriptionID: event.ExternalSubscriptionID,
		Sequence:               event.Sequence,
	})
	if err != nil {
		// A stale event is settled state, not a failure: the provider must
		// not retry it.
		if errors.Is(err, subdomain.ErrStaleEvent) {
			s.log.Info("out-of-order subscription event discarded",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Int64("sequence", event.Sequence),
			)
			return nil
		}
		return err
	}

	s.log.Info("subscription event applied",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.Int64("org_id", int64(event.OrgID)),
		zap.String("module", string(event.Module)),
		zap.String("status", string(event.Status)),
		zap.Int64("sequence", event.Sequence),
	)
	return nil
}

func validateEvent(event *paymentdomain.SubscriptionEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.OrgID == 0 {
		return paymentdomain.ErrInvalidOrganization
	}
	if _, ok := catalog.ParseModule(string(event.Module)); !ok {
		return paymentdomain.ErrInvalidEvent
	}
	if event.Status == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if strings.TrimSpace(event.ExternalSubscriptionID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.Sequence <= 0 {
		return paymentdomain.ErrInvalidEvent
	}
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
