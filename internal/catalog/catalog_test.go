package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitOfIsTotalOverTheCatalog(t *testing.T) {
	c := New()

	for _, tier := range c.Tiers() {
		for _, module := range c.Modules() {
			features := c.Features(module)
			require.NotEmpty(t, features, "module %s has no features", module)
			for _, feature := range features {
				limit, err := c.LimitOf(tier, module, feature)
				require.NoError(t, err, "(%s, %s, %s)", tier, module, feature)

				switch limit.Kind {
				case KindQuota:
					assert.True(t, limit.Quota >= 0 || limit.Quota == Unlimited,
						"(%s, %s, %s) quota %d", tier, module, feature, limit.Quota)
				case KindCapability, KindDegrade:
				default:
					t.Fatalf("(%s, %s, %s) has unknown kind %q", tier, module, feature, limit.Kind)
				}
			}
		}
	}
}

func TestLimitOfUnknownTripleIsConfigurationError(t *testing.T) {
	c := New()

	_, err := c.LimitOf(PlanFree, ModuleCRM, Feature("no_such_feature"))
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ModuleCRM, cfgErr.Module)
	assert.Equal(t, Feature("no_such_feature"), cfgErr.Feature)
}

func TestKnownQuotas(t *testing.T) {
	c := New()

	free, err := c.LimitOf(PlanFree, ModuleCRM, FeatureContacts)
	require.NoError(t, err)
	assert.Equal(t, KindQuota, free.Kind)
	assert.Equal(t, int64(100), free.Quota)

	pro, err := c.LimitOf(PlanPro, ModuleCRM, FeatureContacts)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), pro.Quota)

	enterprise, err := c.LimitOf(PlanEnterprise, ModuleCRM, FeatureContacts)
	require.NoError(t, err)
	assert.Equal(t, Unlimited, enterprise.Quota)
}

func TestDegradeFlagsNeverBlock(t *testing.T) {
	c := New()

	limit, err := c.LimitOf(PlanFree, ModuleAnalytics, FeatureStatsDetail)
	require.NoError(t, err)
	assert.Equal(t, KindDegrade, limit.Kind)
	assert.True(t, limit.Degraded)

	limit, err = c.LimitOf(PlanPro, ModuleAnalytics, FeatureStatsDetail)
	require.NoError(t, err)
	assert.False(t, limit.Degraded)
}

func TestParseModule(t *testing.T) {
	module, ok := ParseModule(" CRM ")
	require.True(t, ok)
	assert.Equal(t, ModuleCRM, module)

	_, ok = ParseModule("payroll")
	assert.False(t, ok)
}

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier("pro")
	require.True(t, ok)
	assert.Equal(t, PlanPro, tier)

	_, ok = ParseTier("PLATINUM")
	assert.False(t, ok)
}
