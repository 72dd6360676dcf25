package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"github.com/smallbiznis/bizsuite/internal/clock"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	"github.com/smallbiznis/bizsuite/internal/modulesub/repository"
	"github.com/smallbiznis/bizsuite/internal/modulesub/service"
	providerpayment "github.com/smallbiznis/bizsuite/internal/providers/payment"
	"github.com/smallbiznis/bizsuite/pkg/lock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type providerCall struct {
	op          string
	externalID  string
	atPeriodEnd bool
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_modulesub_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&subdomain.ModuleSubscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, fc *clock.FakeClock, provider *recordingProvider) subdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	return service.NewService(service.ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fc,
		Repo:     repository.Provide(),
		Provider: provider,
		Mutex:    lock.NewKeyedMutex(),
	})
}

// recordingProvider implements providerpayment.Provider for tests.
type recordingProvider struct {
	calls []providerCall
	err   error
}

func (p *recordingProvider) CreateCheckoutSession(ctx context.Context, req providerpayment.CheckoutSessionRequest) (string, error) {
	return "https://pay.example.test/checkout", nil
}

func (p *recordingProvider) CreatePortalSession(ctx context.Context, orgID snowflake.ID) (string, error) {
	return "https://pay.example.test/portal", nil
}

func (p *recordingProvider) CancelSubscription(ctx context.Context, externalID string, atPeriodEnd bool) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, providerCall{op: "cancel", externalID: externalID, atPeriodEnd: atPeriodEnd})
	return nil
}

func (p *recordingProvider) ResumeSubscription(ctx context.Context, externalID string) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, providerCall{op: "resume", externalID: externalID})
	return nil
}

func activeEvent(orgID snowflake.ID, sequence int64) subdomain.ApplyEventRequest {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return subdomain.ApplyEventRequest{
		OrgID:                  orgID,
		Module:                 catalog.ModuleCRM,
		PlanTier:               catalog.PlanPro,
		Status:                 subdomain.StatusActive,
		BillingCycle:           subdomain.BillingCycleMonthly,
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       start.AddDate(0, 1, 0),
		ExternalSubscriptionID: "sub_ext_1",
		Sequence:               sequence,
	}
}

func TestApplyEventCreatesSubscription(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fc, &recordingProvider{})

	orgID := snowflake.ID(100)
	require.NoError(t, svc.ApplyEvent(ctx, activeEvent(orgID, 10)))

	sub, err := svc.Get(ctx, orgID, catalog.ModuleCRM)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusActive, sub.Status)
	require.Equal(t, catalog.PlanPro, sub.PlanTier)
	require.Equal(t, int64(10), sub.EventSequence)
	require.Nil(t, sub.PendingConfirmSince)
}

func TestApplyEventReplayIsStale(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fc, &recordingProvider{})

	orgID := snowflake.ID(101)
	require.NoError(t, svc.ApplyEvent(ctx, activeEvent(orgID, 10)))

	// Exact replay and an older event must both be skipped.
	err := svc.ApplyEvent(ctx, activeEvent(orgID, 10))
	require.ErrorIs(t, err, subdomain.ErrStaleEvent)

	stale := activeEvent(orgID, 5)
	stale.Status = subdomain.StatusCanceled
	err = svc.ApplyEvent(ctx, stale)
	require.ErrorIs(t, err, subdomain.ErrStaleEvent)

	sub, err := svc.Get(ctx, orgID, catalog.ModuleCRM)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusActive, sub.Status)
	require.Equal(t, int64(10), sub.EventSequence)
}

func TestApplyEventPastDueStampsSince(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	svc := newTestService(t, db, fc, &recordingProvider{})

	orgID := snowflake.ID(102)
	require.NoError(t, svc.ApplyEvent(ctx, activeEvent(orgID, 1)))

	pastDue := activeEvent(orgID, 2)
	pastDue.Status = subdomain.StatusPastDue
	require.NoError(t, svc.ApplyEvent(ctx, pastDue))

	sub, err := svc.Get(ctx, orgID, catalog.ModuleCRM)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusPastDue, sub.Status)
	require.NotNil(t, sub.PastDueSince)
	require.True(t, sub.PastDueSince.Equal(now))

	// Recovery clears the stamp.
	recovered := activeEvent(orgID, 3)
	require.NoError(t, svc.ApplyEvent(ctx, recovered))

	sub, err = svc.Get(ctx, orgID, catalog.ModuleCRM)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusActive, sub.Status)
	require.Nil(t, sub.PastDueSince)
}

func TestCancelAtPeriodEndKeepsActive(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	provider := &recordingProvider{}
	svc := newTestService(t, db, fc, provider)

	orgID := snowflake.ID(103)
	require.NoError(t, svc.ApplyEvent(ctx, activeEvent(orgID, 1)))

	require.NoError(t, svc.Cancel(ctx, orgID, catalog.ModuleCRM, true))
	require.Len(t, provider.calls, 1)
	require.Equal(t, "cancel", provider.calls[0].op)
	require.Equal(t, "sub_ext_1", provider.calls[0].externalID)
	require.True(t, provider.calls[0].atPeriodEnd)

	sub, err := svc.Get(ctx, orgID, catalog.ModuleCRM)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusActive, sub.Status)
	require.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.PendingConfirmSince)
}

func TestCancelProviderFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	provider := &recordingProvider{err: errors.New("provider down")}
	svc := newTestService(t, db, fc, provider)

	orgID := snowflake.ID(104)
	require.NoError(t, svc.ApplyEvent(ctx, activeEvent(orgID, 1)))

	err := svc.Cancel(ctx, orgID, catalog.ModuleCRM, true)
	require.Error(t, err)

	sub, getErr := svc.Get(ctx, orgID, catalog.ModuleCRM)
	require.NoError(t, getErr)
	require.False(t, sub.CancelAtPeriodEnd)
	require.Equal(t, subdomain.StatusActive, sub.Status)
	require.Nil(t, sub.PendingConfirmSince)
}

func TestResumeClearsPendingCancel(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	provider := &recordingProvider{}
	svc := newTestService(t, db, fc, provider)

	orgID := snowflake.ID(105)
	require.NoError(t, svc.ApplyEvent(ctx, activeEvent(orgID, 1)))
	require.NoError(t, svc.Cancel(ctx, orgID, catalog.ModuleCRM, true))

	require.NoError(t, svc.Resume(ctx, orgID, catalog.ModuleCRM))

	sub, err := svc.Get(ctx, orgID, catalog.ModuleCRM)
	require.NoError(t, err)
	require.False(t, sub.CancelAtPeriodEnd)
	require.Equal(t, subdomain.StatusActive, sub.Status)
}

func TestResumeWithoutPendingCancel(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fc, &recordingProvider{})

	orgID := snowflake.ID(106)
	require.NoError(t, svc.ApplyEvent(ctx, activeEvent(orgID, 1)))

	err := svc.Resume(ctx, orgID, catalog.ModuleCRM)
	require.ErrorIs(t, err, subdomain.ErrNotResumable)
}

func TestConfirmCheckoutThenWebhookOverwrites(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	svc := newTestService(t, db, fc, &recordingProvider{})

	orgID := snowflake.ID(107)
	require.NoError(t, svc.ConfirmCheckout(ctx, subdomain.ConfirmCheckoutRequest{
		OrgID:                  orgID,
		Module:                 catalog.ModuleInvoice,
		PlanTier:               catalog.PlanPro,
		BillingCycle:           subdomain.BillingCycleYearly,
		ExternalSubscriptionID: "sub_ext_2",
	}))

	sub, err := svc.Get(ctx, orgID, catalog.ModuleInvoice)
	require.NoError(t, err)
	require.Equal(t, subdomain.StatusActive, sub.Status)
	require.NotNil(t, sub.PendingConfirmSince)
	require.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(1, 0, 0)))

	confirm := activeEvent(orgID, 1)
	confirm.Module = catalog.ModuleInvoice
	confirm.BillingCycle = subdomain.BillingCycleYearly
	confirm.ExternalSubscriptionID = "sub_ext_2"
	require.NoError(t, svc.ApplyEvent(ctx, confirm))

	sub, err = svc.Get(ctx, orgID, catalog.ModuleInvoice)
	require.NoError(t, err)
	require.Nil(t, sub.PendingConfirmSince)
	require.Equal(t, int64(1), sub.EventSequence)
}

func TestGetUnknownModuleSubscription(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fc, &recordingProvider{})

	_, err := svc.Get(ctx, snowflake.ID(999), catalog.ModuleDocs)
	require.ErrorIs(t, err, subdomain.ErrNotFound)
}
