package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL    string
	APIKey     string
	SuccessURL string
	CancelURL  string
	ReturnURL  string
	Timeout    time.Duration
}

// RESTProvider implements Provider against the billing provider's JSON API.
type RESTProvider struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func NewREST(cfg Config, log *zap.Logger) *RESTProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.Named("providers.payment"),
	}
}

type sessionResponse struct {
	URL string `json:"url"`
}

func (p *RESTProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error) {
	payload := map[string]any{
		"client_reference_id": req.OrgID.String(),
		"module":              string(req.Module),
		"plan_tier":           string(req.PlanTier),
		"billing_cycle":       strings.ToLower(req.BillingCycle),
		"success_url":         p.cfg.SuccessURL,
		"cancel_url":          p.cfg.CancelURL,
	}

	var resp sessionResponse
	if err := p.post(ctx, "/v1/checkout/sessions", payload, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (p *RESTProvider) CreatePortalSession(ctx context.Context, orgID snowflake.ID) (string, error) {
	payload := map[string]any{
		"client_reference_id": orgID.String(),
		"return_url":          p.cfg.ReturnURL,
	}

	var resp sessionResponse
	if err := p.post(ctx, "/v1/billing_portal/sessions", payload, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (p *RESTProvider) CancelSubscription(ctx context.Context, externalSubscriptionID string, atPeriodEnd bool) error {
	payload := map[string]any{
		"cancel_at_period_end": atPeriodEnd,
	}
	path := fmt.Sprintf("/v1/subscriptions/%s", externalSubscriptionID)
	if !atPeriodEnd {
		path += "/cancel"
	}
	return p.post(ctx, path, payload, nil)
}

func (p *RESTProvider) ResumeSubscription(ctx context.Context, externalSubscriptionID string) error {
	payload := map[string]any{
		"cancel_at_period_end": false,
	}
	return p.post(ctx, fmt.Sprintf("/v1/subscriptions/%s", externalSubscriptionID), payload, nil)
}

func (p *RESTProvider) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500:
		p.log.Warn("provider returned server error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return json.Unmarshal(data, out)
}
