package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func newAdapter(t *testing.T) paymentdomain.PaymentAdapter {
	t.Helper()

	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": testSecret},
	})
	require.NoError(t, err)
	return adapter
}

func signedHeaders(payload []byte, secret string) http.Header {
	ts := "1767225600"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", ts, payload)))
	signature := hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, signature))
	return headers
}

func subscriptionPayload(eventID, eventType, status string, created int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": %q,
		"created": %d,
		"data": {"object": {
			"id": "sub_123",
			"status": %q,
			"created": %d,
			"current_period_start": 1767225600,
			"current_period_end": 1769904000,
			"cancel_at_period_end": false,
			"items": {"data": [{"price": {"recurring": {"interval": "month"}}}]},
			"metadata": {"org_id": "7177325692984168448", "module": "crm", "plan_tier": "PRO"}
		}}
	}`, eventID, eventType, created, status, created))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := subscriptionPayload("evt_1", "customer.subscription.created", "active", 1767225600)

	err := adapter.Verify(context.Background(), payload, signedHeaders(payload, testSecret))
	require.NoError(t, err)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := subscriptionPayload("evt_1", "customer.subscription.created", "active", 1767225600)

	err := adapter.Verify(context.Background(), payload, signedHeaders(payload, "whsec_other"))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	err = adapter.Verify(context.Background(), payload, http.Header{})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestParseSubscriptionCreated(t *testing.T) {
	adapter := newAdapter(t)
	payload := subscriptionPayload("evt_1", "customer.subscription.created", "active", 1767225600)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "stripe", event.Provider)
	require.Equal(t, "evt_1", event.ProviderEventID)
	require.Equal(t, catalog.ModuleCRM, event.Module)
	require.Equal(t, catalog.PlanPro, event.PlanTier)
	require.Equal(t, subdomain.StatusActive, event.Status)
	require.Equal(t, subdomain.BillingCycleMonthly, event.BillingCycle)
	require.Equal(t, "sub_123", event.ExternalSubscriptionID)
	require.Equal(t, int64(1767225600), event.Sequence)
	require.False(t, event.CancelAtPeriodEnd)
}

func TestParseStatusMapping(t *testing.T) {
	adapter := newAdapter(t)

	cases := []struct {
		provider string
		want     subdomain.Status
	}{
		{"trialing", subdomain.StatusTrialing},
		{"active", subdomain.StatusActive},
		{"past_due", subdomain.StatusPastDue},
		{"unpaid", subdomain.StatusPastDue},
		{"paused", subdomain.StatusPaused},
		{"canceled", subdomain.StatusCanceled},
	}
	for _, tc := range cases {
		payload := subscriptionPayload("evt_s", "customer.subscription.updated", tc.provider, 1767225600)
		event, err := adapter.Parse(context.Background(), payload)
		require.NoError(t, err, tc.provider)
		require.Equal(t, tc.want, event.Status, tc.provider)
	}
}

func TestParseUnmappedStatus(t *testing.T) {
	adapter := newAdapter(t)
	payload := subscriptionPayload("evt_1", "customer.subscription.updated", "incomplete", 1767225600)

	_, err := adapter.Parse(context.Background(), payload)
	var unmapped *paymentdomain.UnmappedStatusError
	require.ErrorAs(t, err, &unmapped)
	require.Equal(t, "incomplete", unmapped.Status)
}

func TestParseDeletedMapsToCanceled(t *testing.T) {
	adapter := newAdapter(t)
	payload := subscriptionPayload("evt_1", "customer.subscription.deleted", "canceled", 1767225600)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusCanceled, event.Status)
}

func TestParseFutureDatedCancelKeepsActive(t *testing.T) {
	adapter := newAdapter(t)
	eventCreated := int64(1767225600)
	cancelAt := eventCreated + 30*24*3600
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"created": %d,
		"data": {"object": {
			"id": "sub_123",
			"status": "active",
			"created": %d,
			"cancel_at": %d,
			"cancel_at_period_end": true,
			"current_period_start": %d,
			"current_period_end": %d,
			"metadata": {"org_id": "7177325692984168448", "module": "crm"}
		}}
	}`, eventCreated, eventCreated, cancelAt, eventCreated, cancelAt))

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusActive, event.Status)
	require.True(t, event.CancelAtPeriodEnd)
	require.NotNil(t, event.EffectiveCancelAt)
	require.True(t, event.EffectiveCancelAt.Equal(time.Unix(cancelAt, 0).UTC()))
}

func TestParseIgnoresNonSubscriptionEvents(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id": "evt_1", "type": "invoice.paid", "created": 1767225600, "data": {"object": {}}}`)

	_, err := adapter.Parse(context.Background(), payload)
	require.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseMissingOrgMetadata(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.created",
		"created": 1767225600,
		"data": {"object": {"id": "sub_123", "status": "active", "metadata": {"module": "crm"}}}
	}`)

	_, err := adapter.Parse(context.Background(), payload)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidOrganization)
}
