package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	providerpayment "github.com/smallbiznis/bizsuite/internal/providers/payment"
)

type checkoutRequest struct {
	Module       string `json:"module"`
	PlanTier     string `json:"plan_tier"`
	BillingCycle string `json:"billing_cycle"`
}

type confirmCheckoutRequest struct {
	Module                 string `json:"module"`
	PlanTier               string `json:"plan_tier"`
	BillingCycle           string `json:"billing_cycle"`
	ExternalSubscriptionID string `json:"external_subscription_id"`
	Trial                  bool   `json:"trial"`
}

type cancelModuleRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

// ListBillingModules returns one row per catalog module with its paid state
// and effective tier, whether or not a subscription row exists.
func (s *Server) ListBillingModules(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	views, err := s.entitlementSvc.ListModuleSubscriptions(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"modules": views})
}

// CreateCheckout opens a provider checkout session for a module upgrade and
// returns the redirect URL. The subscription row is written later, either by
// the confirm callback or by the provider webhook.
func (s *Server) CreateCheckout(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	module, ok := catalog.ParseModule(req.Module)
	if !ok {
		AbortWithError(c, newValidationError("module", "invalid_module", "unknown module"))
		return
	}

	tier := catalog.PlanPro
	if strings.TrimSpace(req.PlanTier) != "" {
		parsed, ok := catalog.ParseTier(req.PlanTier)
		if !ok || parsed == catalog.PlanFree {
			AbortWithError(c, newValidationError("plan_tier", "invalid_plan_tier", "unknown plan tier"))
			return
		}
		tier = parsed
	}

	cycle, err := parseBillingCycle(req.BillingCycle)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	url, err := s.paymentProvider.CreateCheckoutSession(c.Request.Context(), providerpayment.CheckoutSessionRequest{
		OrgID:        orgID,
		Module:       module,
		PlanTier:     tier,
		BillingCycle: string(cycle),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// ConfirmCheckout records the subscription immediately after the checkout
// redirect, so the paid tier applies before the provider webhook lands. The
// webhook remains authoritative and overwrites this provisional row.
func (s *Server) ConfirmCheckout(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req confirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	module, ok := catalog.ParseModule(req.Module)
	if !ok {
		AbortWithError(c, newValidationError("module", "invalid_module", "unknown module"))
		return
	}

	tier := catalog.PlanPro
	if strings.TrimSpace(req.PlanTier) != "" {
		parsed, ok := catalog.ParseTier(req.PlanTier)
		if !ok || parsed == catalog.PlanFree {
			AbortWithError(c, newValidationError("plan_tier", "invalid_plan_tier", "unknown plan tier"))
			return
		}
		tier = parsed
	}

	cycle, err := parseBillingCycle(req.BillingCycle)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	err = s.subscriptionSvc.ConfirmCheckout(c.Request.Context(), subdomain.ConfirmCheckoutRequest{
		OrgID:                  orgID,
		Module:                 module,
		PlanTier:               tier,
		BillingCycle:           cycle,
		ExternalSubscriptionID: strings.TrimSpace(req.ExternalSubscriptionID),
		Trial:                  req.Trial,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.Get(c.Request.Context(), orgID, module)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// CreatePortal returns the provider's self-serve billing portal URL.
func (s *Server) CreatePortal(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	url, err := s.paymentProvider.CreatePortalSession(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) CancelModule(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	module, ok := moduleFromPath(c)
	if !ok {
		return
	}

	req := cancelModuleRequest{AtPeriodEnd: true}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	if err := s.subscriptionSvc.Cancel(c.Request.Context(), orgID, module, req.AtPeriodEnd); err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.Get(c.Request.Context(), orgID, module)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (s *Server) ResumeModule(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	module, ok := moduleFromPath(c)
	if !ok {
		return
	}

	if err := s.subscriptionSvc.Resume(c.Request.Context(), orgID, module); err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.Get(c.Request.Context(), orgID, module)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func moduleFromPath(c *gin.Context) (catalog.Module, bool) {
	module, ok := catalog.ParseModule(strings.TrimSpace(c.Param("module")))
	if !ok {
		AbortWithError(c, newValidationError("module", "invalid_module", "unknown module"))
		return "", false
	}
	return module, true
}

func parseBillingCycle(raw string) (subdomain.BillingCycle, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(subdomain.BillingCycleMonthly):
		return subdomain.BillingCycleMonthly, nil
	case string(subdomain.BillingCycleYearly):
		return subdomain.BillingCycleYearly, nil
	default:
		return "", newValidationError("billing_cycle", "invalid_billing_cycle", "unknown billing cycle")
	}
}
