package entitlement

import (
	"testing"
	"time"

	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	"github.com/stretchr/testify/require"
)

const nearLimit = 80

func TestQuotaStrictBoundary(t *testing.T) {
	limit := catalog.QuotaLimit(100)

	// One below the ceiling still acts.
	d := Evaluate(limit, 99, nearLimit)
	require.True(t, d.CanPerformAction)
	require.False(t, d.IsAtLimit)
	require.Equal(t, int64(1), d.Remaining)

	// Exactly at the ceiling blocks.
	d = Evaluate(limit, 100, nearLimit)
	require.False(t, d.CanPerformAction)
	require.True(t, d.IsAtLimit)
	require.Equal(t, int64(0), d.Remaining)
	require.Equal(t, float64(100), d.Percentage)
}

func TestQuotaOvershootClampsPercentage(t *testing.T) {
	// Quota lowered after usage grew: usage exceeds the ceiling.
	d := Evaluate(catalog.QuotaLimit(100), 150, nearLimit)
	require.False(t, d.CanPerformAction)
	require.True(t, d.IsAtLimit)
	require.Equal(t, int64(0), d.Remaining)
	require.Equal(t, float64(100), d.Percentage)
}

func TestUnlimitedShortCircuits(t *testing.T) {
	limit := catalog.QuotaLimit(catalog.Unlimited)

	for _, usage := range []int64{0, 1, 1_000_000_000} {
		d := Evaluate(limit, usage, nearLimit)
		require.True(t, d.IsUnlimited)
		require.True(t, d.CanPerformAction)
		require.False(t, d.IsAtLimit)
		require.False(t, d.IsNearLimit)
		require.Equal(t, catalog.Unlimited, d.Remaining)
		require.Equal(t, float64(0), d.Percentage)
	}
}

func TestNearLimitThreshold(t *testing.T) {
	limit := catalog.QuotaLimit(100)

	d := Evaluate(limit, 79, nearLimit)
	require.False(t, d.IsNearLimit)

	d = Evaluate(limit, 80, nearLimit)
	require.True(t, d.IsNearLimit)
	require.True(t, d.CanPerformAction)
}

func TestLowUsagePercentage(t *testing.T) {
	d := Evaluate(catalog.QuotaLimit(10_000), 87, nearLimit)
	require.InDelta(t, 0.87, d.Percentage, 0.0001)
	require.False(t, d.IsNearLimit)
	require.True(t, d.CanPerformAction)
	require.Equal(t, int64(9_913), d.Remaining)
}

func TestCapabilityLimit(t *testing.T) {
	d := Evaluate(catalog.CapabilityLimit(true), 0, nearLimit)
	require.True(t, d.IsEnabled)
	require.True(t, d.CanPerformAction)

	d = Evaluate(catalog.CapabilityLimit(false), 0, nearLimit)
	require.False(t, d.IsEnabled)
	require.False(t, d.CanPerformAction)
}

func TestDegradeNeverBlocks(t *testing.T) {
	d := Evaluate(catalog.DegradeLimit(true), 0, nearLimit)
	require.True(t, d.IsDegraded)
	require.True(t, d.IsEnabled)
	require.True(t, d.CanPerformAction)

	d = Evaluate(catalog.DegradeLimit(false), 0, nearLimit)
	require.False(t, d.IsDegraded)
	require.True(t, d.CanPerformAction)
}

func TestEvaluateIsPure(t *testing.T) {
	limit := catalog.QuotaLimit(500)
	first := Evaluate(limit, 123, nearLimit)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Evaluate(limit, 123, nearLimit))
	}
}

func TestEffectiveTierModuleOverride(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	grace := 7 * 24 * time.Hour

	sub := &subdomain.ModuleSubscription{
		PlanTier: catalog.PlanPro,
		Status:   subdomain.StatusActive,
	}
	require.Equal(t, catalog.PlanPro, EffectiveTier(catalog.PlanFree, sub, now, grace))

	// No subscription for the module: global tier governs.
	require.Equal(t, catalog.PlanFree, EffectiveTier(catalog.PlanFree, nil, now, grace))
}

func TestEffectiveTierTrialing(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	sub := &subdomain.ModuleSubscription{
		PlanTier: catalog.PlanEnterprise,
		Status:   subdomain.StatusTrialing,
	}
	require.Equal(t, catalog.PlanEnterprise, EffectiveTier(catalog.PlanFree, sub, now, 7*24*time.Hour))
}

func TestEffectiveTierPastDueGraceWindow(t *testing.T) {
	grace := 7 * 24 * time.Hour
	since := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	sub := &subdomain.ModuleSubscription{
		PlanTier:     catalog.PlanPro,
		Status:       subdomain.StatusPastDue,
		PastDueSince: &since,
	}

	// Inside the window the paid tier still governs.
	within := since.Add(grace - time.Hour)
	require.Equal(t, catalog.PlanPro, EffectiveTier(catalog.PlanFree, sub, within, grace))

	// Past the window the org-wide tier takes over.
	beyond := since.Add(grace + time.Hour)
	require.Equal(t, catalog.PlanFree, EffectiveTier(catalog.PlanFree, sub, beyond, grace))
}

func TestEffectiveTierCanceledAndPaused(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	grace := 7 * 24 * time.Hour

	for _, status := range []subdomain.Status{subdomain.StatusCanceled, subdomain.StatusPaused} {
		sub := &subdomain.ModuleSubscription{
			PlanTier: catalog.PlanPro,
			Status:   status,
		}
		require.Equal(t, catalog.PlanFree, EffectiveTier(catalog.PlanFree, sub, now, grace), status)
	}
}
