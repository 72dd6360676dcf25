// Package payment talks to the external billing provider's REST API for
// outbound operations (checkout, portal, cancel, resume). Inbound state
// changes arrive through webhooks and are handled elsewhere.
package payment

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
)

// ErrProviderUnavailable wraps transport failures and provider 5xx
// responses. Callers must not apply local state changes when they see it.
var ErrProviderUnavailable = errors.New("payment_provider_unavailable")

// ErrProviderRejected reports a provider 4xx: the request itself was
// refused, retrying will not help.
var ErrProviderRejected = errors.New("payment_provider_rejected")

type CheckoutSessionRequest struct {
	OrgID        snowflake.ID
	Module       catalog.Module
	PlanTier     catalog.PlanTier
	BillingCycle string
}

type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)
	CreatePortalSession(ctx context.Context, orgID snowflake.ID) (string, error)
	CancelSubscription(ctx context.Context, externalSubscriptionID string, atPeriodEnd bool) error
	ResumeSubscription(ctx context.Context, externalSubscriptionID string) error
}

// NoOpProvider satisfies Provider for environments without billing
// credentials. Checkout and portal return empty URLs.
type NoOpProvider struct{}

func (p *NoOpProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error) {
	return "", nil
}

func (p *NoOpProvider) CreatePortalSession(ctx context.Context, orgID snowflake.ID) (string, error) {
	return "", nil
}

func (p *NoOpProvider) CancelSubscription(ctx context.Context, externalSubscriptionID string, atPeriodEnd bool) error {
	return nil
}

func (p *NoOpProvider) ResumeSubscription(ctx context.Context, externalSubscriptionID string) error {
	return nil
}
