package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"github.com/smallbiznis/bizsuite/internal/entitlement"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	providerpayment "github.com/smallbiznis/bizsuite/internal/providers/payment"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOrgHeader = "7177325692984168448"

type fakeSubscriptionService struct {
	sub       *subdomain.ModuleSubscription
	cancelErr error
	resumeErr error

	cancelCalls  int
	confirmCalls int
	lastConfirm  subdomain.ConfirmCheckoutRequest
}

func (f *fakeSubscriptionService) Get(ctx context.Context, orgID snowflake.ID, module catalog.Module) (*subdomain.ModuleSubscription, error) {
	if f.sub == nil {
		return nil, subdomain.ErrNotFound
	}
	return f.sub, nil
}

func (f *fakeSubscriptionService) List(ctx context.Context, orgID snowflake.ID) ([]subdomain.ModuleSubscription, error) {
	if f.sub == nil {
		return nil, nil
	}
	return []subdomain.ModuleSubscription{*f.sub}, nil
}

func (f *fakeSubscriptionService) ApplyEvent(ctx context.Context, req subdomain.ApplyEventRequest) error {
	return nil
}

func (f *fakeSubscriptionService) Cancel(ctx context.Context, orgID snowflake.ID, module catalog.Module, atPeriodEnd bool) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeSubscriptionService) Resume(ctx context.Context, orgID snowflake.ID, module catalog.Module) error {
	return f.resumeErr
}

func (f *fakeSubscriptionService) ConfirmCheckout(ctx context.Context, req subdomain.ConfirmCheckoutRequest) error {
	f.confirmCalls++
	f.lastConfirm = req
	return nil
}

type fakeEntitlementService struct {
	decision entitlement.Decision
	paid     bool
	err      error
}

func (f *fakeEntitlementService) IsModulePaid(ctx context.Context, orgID snowflake.ID, module catalog.Module) (bool, error) {
	return f.paid, f.err
}

func (f *fakeEntitlementService) FeatureUsage(ctx context.Context, orgID snowflake.ID, module catalog.Module, feature catalog.Feature) (entitlement.Decision, error) {
	return f.decision, f.err
}

func (f *fakeEntitlementService) ListModuleSubscriptions(ctx context.Context, orgID snowflake.ID) ([]entitlement.ModuleSubscriptionView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []entitlement.ModuleSubscriptionView{{Module: catalog.ModuleCRM, Paid: f.paid}}, nil
}

type fakeWebhookService struct {
	err   error
	calls int
}

func (f *fakeWebhookService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.calls++
	return f.err
}

type fakeCheckoutProvider struct {
	url string
	err error
}

func (f *fakeCheckoutProvider) CreateCheckoutSession(ctx context.Context, req providerpayment.CheckoutSessionRequest) (string, error) {
	return f.url, f.err
}

func (f *fakeCheckoutProvider) CreatePortalSession(ctx context.Context, orgID snowflake.ID) (string, error) {
	return f.url, f.err
}

func (f *fakeCheckoutProvider) CancelSubscription(ctx context.Context, externalSubscriptionID string, atPeriodEnd bool) error {
	return f.err
}

func (f *fakeCheckoutProvider) ResumeSubscription(ctx context.Context, externalSubscriptionID string) error {
	return f.err
}

type fakeEventLogRepo struct {
	entries []paymentdomain.SubscriptionEventLog
}

func (f *fakeEventLogRepo) InsertEvent(ctx context.Context, db *gorm.DB, event *paymentdomain.EventRecord) (bool, error) {
	return true, nil
}

func (f *fakeEventLogRepo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*paymentdomain.EventRecord, error) {
	return nil, nil
}

func (f *fakeEventLogRepo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return nil
}

func (f *fakeEventLogRepo) AppendLog(ctx context.Context, db *gorm.DB, entry *paymentdomain.SubscriptionEventLog) error {
	return nil
}

func (f *fakeEventLogRepo) ListLog(ctx context.Context, db *gorm.DB, orgID snowflake.ID, module string, afterSequence int64, limit int) ([]paymentdomain.SubscriptionEventLog, error) {
	var out []paymentdomain.SubscriptionEventLog
	for _, entry := range f.entries {
		if entry.Sequence <= afterSequence {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestServer(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv.engine = router
	srv.catalog = catalog.New()
	srv.registerWebhookRoutes()
	srv.registerAPIRoutes()
	return router
}

func doJSON(router *gin.Engine, method, path, body string, withOrg bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if withOrg {
		req.Header.Set(HeaderOrg, testOrgHeader)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPaymentWebhookAnswersOK(t *testing.T) {
	webhookSvc := &fakeWebhookService{}
	router := newTestServer(&Server{paymentSvc: webhookSvc})

	resp := doJSON(router, http.MethodPost, "/webhooks/payment/stripe", `{"id":"evt_1"}`, false)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, webhookSvc.calls)
}

func TestPaymentWebhookDuplicateAnswersOK(t *testing.T) {
	webhookSvc := &fakeWebhookService{err: fmt.Errorf("seen: %w", paymentdomain.ErrEventAlreadyProcessed)}
	router := newTestServer(&Server{paymentSvc: webhookSvc})

	resp := doJSON(router, http.MethodPost, "/webhooks/payment/stripe", `{"id":"evt_1"}`, false)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestPaymentWebhookBadSignatureRejected(t *testing.T) {
	webhookSvc := &fakeWebhookService{err: paymentdomain.ErrInvalidSignature}
	router := newTestServer(&Server{paymentSvc: webhookSvc})

	resp := doJSON(router, http.MethodPost, "/webhooks/payment/stripe", `{"id":"evt_1"}`, false)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCheckoutReturnsProviderURL(t *testing.T) {
	router := newTestServer(&Server{
		subscriptionSvc: &fakeSubscriptionService{},
		paymentProvider: &fakeCheckoutProvider{url: "https://pay.example.com/cs_123"},
	})

	resp := doJSON(router, http.MethodPost, "/api/v1/billing/checkout", `{"module":"crm","billing_cycle":"MONTHLY"}`, true)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "https://pay.example.com/cs_123")
}

func TestCheckoutUnknownModuleRejected(t *testing.T) {
	router := newTestServer(&Server{
		subscriptionSvc: &fakeSubscriptionService{},
		paymentProvider: &fakeCheckoutProvider{},
	})

	resp := doJSON(router, http.MethodPost, "/api/v1/billing/checkout", `{"module":"warehouse"}`, true)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMissingOrgHeaderRejected(t *testing.T) {
	router := newTestServer(&Server{
		subscriptionSvc: &fakeSubscriptionService{},
		paymentProvider: &fakeCheckoutProvider{},
	})

	resp := doJSON(router, http.MethodPost, "/api/v1/billing/checkout", `{"module":"crm"}`, false)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestConfirmCheckoutWritesProvisionalRow(t *testing.T) {
	subSvc := &fakeSubscriptionService{sub: &subdomain.ModuleSubscription{
		Module:   catalog.ModuleCRM,
		PlanTier: catalog.PlanPro,
		Status:   subdomain.StatusActive,
	}}
	router := newTestServer(&Server{subscriptionSvc: subSvc})

	body := `{"module":"crm","billing_cycle":"YEARLY","external_subscription_id":"sub_123"}`
	resp := doJSON(router, http.MethodPost, "/api/v1/billing/checkout/confirm", body, true)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, subSvc.confirmCalls)
	require.Equal(t, catalog.ModuleCRM, subSvc.lastConfirm.Module)
	require.Equal(t, subdomain.BillingCycleYearly, subSvc.lastConfirm.BillingCycle)
	require.Equal(t, "sub_123", subSvc.lastConfirm.ExternalSubscriptionID)
}

func TestCancelProviderOutageAnswers502(t *testing.T) {
	subSvc := &fakeSubscriptionService{
		cancelErr: fmt.Errorf("cancel subscription: %w", providerpayment.ErrProviderUnavailable),
	}
	router := newTestServer(&Server{subscriptionSvc: subSvc})

	resp := doJSON(router, http.MethodPost, "/api/v1/billing/modules/crm/cancel", `{"at_period_end":true}`, true)

	require.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestResumeWithoutPendingCancelConflicts(t *testing.T) {
	subSvc := &fakeSubscriptionService{resumeErr: subdomain.ErrNotResumable}
	router := newTestServer(&Server{subscriptionSvc: subSvc})

	resp := doJSON(router, http.MethodPost, "/api/v1/billing/modules/crm/resume", ``, true)

	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestFeatureUsageReturnsDecision(t *testing.T) {
	entSvc := &fakeEntitlementService{decision: entitlement.Decision{
		Limit:            100,
		Current:          87,
		Remaining:        13,
		Percentage:       87,
		IsNearLimit:      true,
		CanPerformAction: true,
	}}
	router := newTestServer(&Server{entitlementSvc: entSvc})

	resp := doJSON(router, http.MethodGet, "/api/v1/entitlements/crm/contacts", ``, true)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"can_perform_action":true`)
	require.Contains(t, resp.Body.String(), `"is_near_limit":true`)
}

func TestFeatureUsageUnknownFeatureRejected(t *testing.T) {
	router := newTestServer(&Server{entitlementSvc: &fakeEntitlementService{}})

	resp := doJSON(router, http.MethodGet, "/api/v1/entitlements/crm/gigabytes", ``, true)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUnknownOrgAnswers404(t *testing.T) {
	router := newTestServer(&Server{entitlementSvc: &fakeEntitlementService{err: entitlement.ErrUnknownOrg}})

	resp := doJSON(router, http.MethodGet, "/api/v1/entitlements/crm", ``, true)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListModuleEventsPages(t *testing.T) {
	repo := &fakeEventLogRepo{entries: []paymentdomain.SubscriptionEventLog{
		{Sequence: 1, Provider: "stripe", Status: "ACTIVE"},
		{Sequence: 2, Provider: "stripe", Status: "PAST_DUE"},
		{Sequence: 3, Provider: "stripe", Status: "ACTIVE"},
	}}
	router := newTestServer(&Server{paymentRepo: repo})

	resp := doJSON(router, http.MethodGet, "/api/v1/billing/modules/crm/events?page_size=2", ``, true)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"has_more":true`)
	require.Contains(t, resp.Body.String(), `"PAST_DUE"`)
	require.NotContains(t, resp.Body.String(), `"sequence":3`)
}

func TestListBillingModules(t *testing.T) {
	router := newTestServer(&Server{entitlementSvc: &fakeEntitlementService{paid: true}})

	resp := doJSON(router, http.MethodGet, "/api/v1/billing/modules", ``, true)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"crm"`)
}
