package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"github.com/smallbiznis/bizsuite/internal/clock"
	"github.com/smallbiznis/bizsuite/internal/config"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	"github.com/smallbiznis/bizsuite/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/bizsuite/internal/organization/domain"
	"github.com/smallbiznis/bizsuite/internal/usage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidModule  = errors.New("invalid_module")
	ErrInvalidFeature = errors.New("invalid_feature")
	ErrUnknownOrg     = errors.New("unknown_organization")
)

// ModuleSubscriptionView is one row of the billing-settings screen.
type ModuleSubscriptionView struct {
	Module            catalog.Module   `json:"module"`
	Paid              bool             `json:"paid"`
	EffectiveTier     catalog.PlanTier `json:"effective_tier"`
	Status            string           `json:"status,omitempty"`
	BillingCycle      string           `json:"billing_cycle,omitempty"`
	CurrentPeriodEnd  *time.Time       `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool             `json:"cancel_at_period_end"`
	PastDueSince      *time.Time       `json:"past_due_since,omitempty"`
}

// Service is the engine's consumer surface. Domain modules call exactly
// these three hooks and enforce the decisions themselves.
type Service interface {
	IsModulePaid(ctx context.Context, orgID snowflake.ID, module catalog.Module) (bool, error)
	FeatureUsage(ctx context.Context, orgID snowflake.ID, module catalog.Module, feature catalog.Feature) (Decision, error)
	ListModuleSubscriptions(ctx context.Context, orgID snowflake.ID) ([]ModuleSubscriptionView, error)
}

type service struct {
	db  *gorm.DB
	log *zap.Logger

	catalog *catalog.Catalog
	orgRepo organizationdomain.Repository
	subSvc  subdomain.Service
	usage   *usage.Registry
	holder  *config.EntitlementConfigHolder
	clock   clock.Clock
	metrics *metrics.EngineMetrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Catalog *catalog.Catalog
	OrgRepo organizationdomain.Repository
	SubSvc  subdomain.Service
	Usage   *usage.Registry
	Holder  *config.EntitlementConfigHolder
	Clock   clock.Clock
	Metrics *metrics.EngineMetrics `optional:"true"`
}

func NewService(p ServiceParam) Service {
	return &service{
		db:  p.DB,
		log: p.Log.Named("entitlement.service"),

		catalog: p.Catalog,
		orgRepo: p.OrgRepo,
		subSvc:  p.SubSvc,
		usage:   p.Usage,
		holder:  p.Holder,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// IsModulePaid implements Service.
func (s *service) IsModulePaid(ctx context.Context, orgID snowflake.ID, module catalog.Module) (bool, error) {
	if _, ok := catalog.ParseModule(string(module)); !ok {
		return false, ErrInvalidModule
	}

	sub, err := s.subscription(ctx, orgID, module)
	if err != nil {
		return false, err
	}

	grace := s.holder.Get().PastDueGraceWindow
	return subscriptionPaid(sub, s.clock.Now(), grace), nil
}

// FeatureUsage implements Service. Any failure along the chain propagates:
// the callers deny on error, so a broken dependency can never widen access.
func (s *service) FeatureUsage(ctx context.Context, orgID snowflake.ID, module catalog.Module, feature catalog.Feature) (Decision, error) {
	if _, ok := catalog.ParseModule(string(module)); !ok {
		return Decision{}, ErrInvalidModule
	}

	org, err := s.orgRepo.FindByID(ctx, s.db, orgID)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNotFound) {
			return Decision{}, ErrUnknownOrg
		}
		return Decision{}, err
	}

	sub, err := s.subscription(ctx, orgID, module)
	if err != nil {
		return Decision{}, err
	}

	cfg := s.holder.Get()
	now := s.clock.Now()
	tier := EffectiveTier(org.PlanTier, sub, now, cfg.PastDueGraceWindow)

	limit, err := s.catalog.LimitOf(tier, module, feature)
	if err != nil {
		var confErr *catalog.ConfigurationError
		if errors.As(err, &confErr) {
			s.log.Error("entitlement lookup outside the catalog",
				zap.String("tier", string(confErr.Tier)),
				zap.String("module", string(confErr.Module)),
				zap.String("feature", string(confErr.Feature)),
			)
		}
		return Decision{}, err
	}

	var current int64
	if limit.Kind == catalog.KindQuota && limit.Quota != catalog.Unlimited {
		// Live count from the owning module. A read failure propagates
		// instead of being treated as zero usage.
		current, err = s.usage.CurrentUsage(ctx, orgID, module, feature)
		if err != nil {
			return Decision{}, err
		}
	}

	decision := Evaluate(limit, current, cfg.NearLimitPercent)
	s.metrics.RecordDecision(string(module), string(feature), decision.CanPerformAction)
	return decision, nil
}

// ListModuleSubscriptions implements Service.
func (s *service) ListModuleSubscriptions(ctx context.Context, orgID snowflake.ID) ([]ModuleSubscriptionView, error) {
	org, err := s.orgRepo.FindByID(ctx, s.db, orgID)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNotFound) {
			return nil, ErrUnknownOrg
		}
		return nil, err
	}

	subs, err := s.subSvc.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	byModule := make(map[catalog.Module]*subdomain.ModuleSubscription, len(subs))
	for i := range subs {
		byModule[subs[i].Module] = &subs[i]
	}

	cfg := s.holder.Get()
	now := s.clock.Now()

	views := make([]ModuleSubscriptionView, 0, len(s.catalog.Modules()))
	for _, module := range s.catalog.Modules() {
		sub := byModule[module]
		view := ModuleSubscriptionView{
			Module:        module,
			Paid:          subscriptionPaid(sub, now, cfg.PastDueGraceWindow),
			EffectiveTier: EffectiveTier(org.PlanTier, sub, now, cfg.PastDueGraceWindow),
		}
		if sub != nil {
			view.Status = string(sub.Status)
			view.BillingCycle = string(sub.BillingCycle)
			view.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
			view.PastDueSince = sub.PastDueSince
			if !sub.CurrentPeriodEnd.IsZero() {
				end := sub.CurrentPeriodEnd
				view.CurrentPeriodEnd = &end
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *service) subscription(ctx context.Context, orgID snowflake.ID, module catalog.Module) (*subdomain.ModuleSubscription, error) {
	sub, err := s.subSvc.Get(ctx, orgID, module)
	if err != nil {
		if errors.Is(err, subdomain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}
