package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.SubscriptionEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventType := strings.TrimSpace(event.Type)
	switch eventType {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.resumed",
		"customer.subscription.paused",
		"customer.subscription.deleted":
		return a.parseSubscription(event, eventType, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (a *Adapter) parseSubscription(event stripeEvent, eventType string, payload []byte) (*paymentdomain.SubscriptionEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	orgID, module, tier, err := parseMetadata(sub.Metadata)
	if err != nil {
		return nil, err
	}

	status, err := mapStatus(eventType, sub.Status)
	if err != nil {
		return nil, err
	}

	out := &paymentdomain.SubscriptionEvent{
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		Type:                   eventType,
		OrgID:                  orgID,
		Module:                 module,
		PlanTier:               tier,
		Status:                 status,
		BillingCycle:           mapBillingCycle(sub),
		CurrentPeriodStart:     unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		ExternalSubscriptionID: sub.ID,
		Sequence:               event.Created,
		OccurredAt:             timestamp(sub.Created, event.Created),
		RawPayload:             payload,
	}

	// A future-dated cancellation keeps the paid status until the date
	// passes; only the flag and the effective date are recorded now.
	if sub.CancelAt > 0 {
		at := unixTime(sub.CancelAt)
		out.EffectiveCancelAt = &at
		if at.After(timestamp(event.Created, 0)) && status != subdomain.StatusCanceled {
			out.CancelAtPeriodEnd = true
		}
	}
	if status == subdomain.StatusCanceled && out.EffectiveCancelAt == nil && sub.CanceledAt > 0 {
		at := unixTime(sub.CanceledAt)
		out.EffectiveCancelAt = &at
	}

	return out, nil
}

func mapStatus(eventType, raw string) (subdomain.Status, error) {
	if eventType == "customer.subscription.deleted" {
		return subdomain.StatusCanceled, nil
	}
	if eventType == "customer.subscription.paused" {
		return subdomain.StatusPaused, nil
	}

	switch strings.TrimSpace(raw) {
	case "trialing":
		return subdomain.StatusTrialing, nil
	case "active":
		return subdomain.StatusActive, nil
	case "past_due", "unpaid":
		return subdomain.StatusPastDue, nil
	case "paused":
		return subdomain.StatusPaused, nil
	case "canceled", "incomplete_expired":
		return subdomain.StatusCanceled, nil
	default:
		return "", &paymentdomain.UnmappedStatusError{Provider: "stripe", Status: raw}
	}
}

func mapBillingCycle(sub stripeSubscription) subdomain.BillingCycle {
	interval := ""
	if len(sub.Items.Data) > 0 {
		interval = sub.Items.Data[0].Price.Recurring.Interval
	}
	if raw := readMetadataValue(sub.Metadata, "billing_cycle"); raw != "" {
		interval = raw
	}
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "year", "yearly":
		return subdomain.BillingCycleYearly
	default:
		return subdomain.BillingCycleMonthly
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSubscription struct {
	ID                 string              `json:"id"`
	Status             string              `json:"status"`
	CancelAtPeriodEnd  bool                `json:"cancel_at_period_end"`
	CancelAt           int64               `json:"cancel_at"`
	CanceledAt         int64               `json:"canceled_at"`
	Created            int64               `json:"created"`
	CurrentPeriodStart int64               `json:"current_period_start"`
	CurrentPeriodEnd   int64               `json:"current_period_end"`
	Items              stripeItemContainer `json:"items"`
	Metadata           map[string]any      `json:"metadata"`
}

type stripeItemContainer struct {
	Data []stripeItem `json:"data"`
}

type stripeItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	Recurring stripeRecurring `json:"recurring"`
}

type stripeRecurring struct {
	Interval string `json:"interval"`
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func unixTime(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func parseMetadata(metadata map[string]any) (snowflake.ID, catalog.Module, catalog.PlanTier, error) {
	orgRaw := readMetadataValue(metadata, "org_id")
	if orgRaw == "" {
		return 0, "", "", paymentdomain.ErrInvalidOrganization
	}
	orgID, err := snowflake.ParseString(orgRaw)
	if err != nil {
		return 0, "", "", paymentdomain.ErrInvalidOrganization
	}

	module, ok := catalog.ParseModule(readMetadataValue(metadata, "module"))
	if !ok {
		return 0, "", "", paymentdomain.ErrInvalidEvent
	}

	tier := catalog.PlanPro
	if raw := readMetadataValue(metadata, "plan_tier"); raw != "" {
		parsed, ok := catalog.ParseTier(raw)
		if !ok {
			return 0, "", "", paymentdomain.ErrInvalidEvent
		}
		tier = parsed
	}

	return orgID, module, tier, nil
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
