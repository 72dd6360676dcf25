package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
)

var (
	ErrNotFound               = errors.New("module_subscription_not_found")
	ErrStaleEvent             = errors.New("stale_subscription_event")
	ErrInvalidModule          = errors.New("invalid_module")
	ErrInvalidBillingCycle    = errors.New("invalid_billing_cycle")
	ErrInvalidStatus          = errors.New("invalid_subscription_status")
	ErrNotCancelable          = errors.New("subscription_not_cancelable")
	ErrNotResumable           = errors.New("subscription_not_resumable")
	ErrNoExternalSubscription = errors.New("missing_external_subscription")
)

// ApplyEventRequest is the canonical, provider-agnostic shape the webhook
// reconciler feeds into the store. Sequence carries the provider's ordering.
type ApplyEventRequest struct {
	OrgID                  snowflake.ID
	Module                 catalog.Module
	PlanTier               catalog.PlanTier
	Status                 Status
	BillingCycle           BillingCycle
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	EffectiveCancelAt      *time.Time
	ExternalSubscriptionID string
	Sequence               int64
}

// ConfirmCheckoutRequest records a provisional subscription right after the
// synchronous checkout confirmation, before the provider webhook lands.
type ConfirmCheckoutRequest struct {
	OrgID                  snowflake.ID
	Module                 catalog.Module
	PlanTier               catalog.PlanTier
	BillingCycle           BillingCycle
	ExternalSubscriptionID string
	Trial                  bool
}

type Service interface {
	Get(ctx context.Context, orgID snowflake.ID, module catalog.Module) (*ModuleSubscription, error)
	List(ctx context.Context, orgID snowflake.ID) ([]ModuleSubscription, error)
	ApplyEvent(ctx context.Context, req ApplyEventRequest) error
	Cancel(ctx context.Context, orgID snowflake.ID, module catalog.Module, atPeriodEnd bool) error
	Resume(ctx context.Context, orgID snowflake.ID, module catalog.Module) error
	ConfirmCheckout(ctx context.Context, req ConfirmCheckoutRequest) error
}
