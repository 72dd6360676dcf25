package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Product decisions for entitlement evaluation. The grace window in
// particular is a billing policy, not an implementation detail, so it lives
// here with a single named default.
const (
	// DefaultPastDueGraceWindow is how long a past_due module subscription
	// keeps evaluating at its paid tier after the first failed payment.
	DefaultPastDueGraceWindow = 7 * 24 * time.Hour

	// DefaultSweepInterval is how often the reconciliation sweep runs.
	DefaultSweepInterval = time.Minute

	// DefaultConfirmationWindow bounds how long an optimistic cancel/resume
	// write may stand without a confirming webhook before it is flagged.
	DefaultConfirmationWindow = 15 * time.Minute

	// DefaultNearLimitPercent is the usage percentage at which a quota is
	// reported as near its limit.
	DefaultNearLimitPercent = 80
)

// EntitlementConfig carries hot-reloadable entitlement tunables.
type EntitlementConfig struct {
	PastDueGraceWindow time.Duration `mapstructure:"pastDueGraceWindow"`
	SweepInterval      time.Duration `mapstructure:"sweepInterval"`
	ConfirmationWindow time.Duration `mapstructure:"confirmationWindow"`
	NearLimitPercent   int           `mapstructure:"nearLimitPercent"`
}

func DefaultEntitlementConfig() EntitlementConfig {
	return EntitlementConfig{
		PastDueGraceWindow: DefaultPastDueGraceWindow,
		SweepInterval:      DefaultSweepInterval,
		ConfirmationWindow: DefaultConfirmationWindow,
		NearLimitPercent:   DefaultNearLimitPercent,
	}
}

// EntitlementConfigHolder exposes the current config and swaps it atomically
// on file change, so a tuned grace window takes effect without a restart.
type EntitlementConfigHolder struct {
	current atomic.Value // holds EntitlementConfig
}

func NewEntitlementConfigHolder() (*EntitlementConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("entitlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/bizsuite/config")
	v.AddConfigPath("/etc/bizsuite")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BIZSUITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEntitlementConfig()
	v.SetDefault("entitlement.pastDueGraceWindow", defaults.PastDueGraceWindow)
	v.SetDefault("entitlement.sweepInterval", defaults.SweepInterval)
	v.SetDefault("entitlement.confirmationWindow", defaults.ConfirmationWindow)
	v.SetDefault("entitlement.nearLimitPercent", defaults.NearLimitPercent)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg EntitlementConfig
	if err := v.UnmarshalKey("entitlement", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateEntitlementConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EntitlementConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EntitlementConfig
		if err := v.UnmarshalKey("entitlement", &updated); err != nil {
			log.Printf("[entitlement-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validateEntitlementConfig(updated); err != nil {
			log.Printf("[entitlement-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[entitlement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EntitlementConfigHolder) Get() EntitlementConfig {
	return h.current.Load().(EntitlementConfig)
}

// NewStaticEntitlementConfigHolder wraps a fixed config without file
// watching, for tests and tools.
func NewStaticEntitlementConfigHolder(cfg EntitlementConfig) *EntitlementConfigHolder {
	holder := &EntitlementConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func (c EntitlementConfig) withDefaults() EntitlementConfig {
	defaults := DefaultEntitlementConfig()
	if c.PastDueGraceWindow <= 0 {
		c.PastDueGraceWindow = defaults.PastDueGraceWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.ConfirmationWindow <= 0 {
		c.ConfirmationWindow = defaults.ConfirmationWindow
	}
	if c.NearLimitPercent <= 0 {
		c.NearLimitPercent = defaults.NearLimitPercent
	}
	return c
}

func validateEntitlementConfig(cfg EntitlementConfig) error {
	if cfg.NearLimitPercent > 100 {
		return errors.New("entitlement.nearLimitPercent cannot exceed 100")
	}
	return nil
}
