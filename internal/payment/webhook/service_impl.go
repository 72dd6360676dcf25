// Package webhook ingests raw provider webhook deliveries: signature
// verification, parsing, then handoff to the reconciler.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/bizsuite/internal/config"
	"github.com/smallbiznis/bizsuite/internal/observability/metrics"
	"github.com/smallbiznis/bizsuite/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	paymentservice "github.com/smallbiznis/bizsuite/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Reconciler *paymentservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
	Metrics    *metrics.EngineMetrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	reconciler *paymentservice.Service
	adapters   *adapters.Registry
	secret     string
	metrics    *metrics.EngineMetrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		reconciler: p.Reconciler,
		adapters:   p.Adapters,
		secret:     strings.TrimSpace(p.Cfg.Payment.WebhookSecret),
		metrics:    p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		s.metrics.RecordWebhookEvent(provider, "invalid")
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": s.secret},
	})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.metrics.RecordWebhookEvent(provider, "rejected")
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.metrics.RecordWebhookEvent(provider, "ignored")
			return nil
		}
		var unmapped *paymentdomain.UnmappedStatusError
		if errors.As(err, &unmapped) {
			s.metrics.RecordWebhookEvent(provider, "unmapped")
			s.log.Error("subscription event with unmapped provider status",
				zap.String("provider", unmapped.Provider),
				zap.String("provider_status", unmapped.Status),
			)
			return err
		}
		s.metrics.RecordWebhookEvent(provider, "invalid")
		return err
	}

	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	err = s.reconciler.ProcessEvent(ctx, event, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			s.metrics.RecordWebhookEvent(provider, "duplicate")
			return nil
		}
		s.metrics.RecordWebhookEvent(provider, "error")
		return err
	}

	s.metrics.RecordWebhookEvent(provider, "applied")
	return nil
}
