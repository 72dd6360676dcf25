package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	"gorm.io/datatypes"
)

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_provider_config")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrInvalidOrganization   = errors.New("invalid_organization")
)

// UnmappedStatusError reports a subscription event the adapter recognized but
// whose provider status has no mapping. It signals a catalog/provider
// configuration gap, so webhooks must fail loudly and be retried, never
// silently dropped.
type UnmappedStatusError struct {
	Provider string
	Status   string
}

func (e *UnmappedStatusError) Error() string {
	return fmt.Sprintf("unmapped subscription status %q from provider %q", e.Status, e.Provider)
}

// SubscriptionEvent is the canonical subscription lifecycle event parsed by
// provider adapters. Sequence carries the provider's ordering for
// last-writer-wins application.
type SubscriptionEvent struct {
	Provider               string
	ProviderEventID        string
	Type                   string
	OrgID                  snowflake.ID
	Module                 catalog.Module
	PlanTier               catalog.PlanTier
	Status                 subdomain.Status
	BillingCycle           subdomain.BillingCycle
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	EffectiveCancelAt      *time.Time
	ExternalSubscriptionID string
	Sequence               int64
	OccurredAt             time.Time
	RawPayload             []byte
}

// EventRecord is the seen-event table backing webhook idempotency. The
// (provider, provider_event_id) unique index makes the first insert win.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID   `json:"org_id" gorm:"not null;index"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_webhook_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_webhook_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Module          catalog.Module `json:"module" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_webhook_events" }

// SubscriptionEventLog is the append-only audit trail of accepted events,
// keyed by (org, module, sequence). Rows are never updated or deleted.
type SubscriptionEventLog struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID   `json:"org_id" gorm:"not null;uniqueIndex:ux_subscription_event_log_org_module_seq"`
	Module          catalog.Module `json:"module" gorm:"type:text;not null;uniqueIndex:ux_subscription_event_log_org_module_seq"`
	Sequence        int64          `json:"sequence" gorm:"not null;uniqueIndex:ux_subscription_event_log_org_module_seq"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	Status          string         `json:"status" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	OccurredAt      time.Time      `json:"occurred_at" gorm:"not null"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SubscriptionEventLog) TableName() string { return "subscription_event_log" }

// AdapterConfig carries provider-specific settings into an adapter.
type AdapterConfig struct {
	Config map[string]any
}

// PaymentAdapter verifies and parses one provider's webhook payloads.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*SubscriptionEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// Service ingests raw provider webhooks.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
