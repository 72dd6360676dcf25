package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizsuite/internal/catalog"
)

// GetModuleEntitlement answers the module-level gate: is this module on a
// paid tier for the org right now.
func (s *Server) GetModuleEntitlement(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	module, ok := moduleFromPath(c)
	if !ok {
		return
	}

	paid, err := s.entitlementSvc.IsModulePaid(c.Request.Context(), orgID, module)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"module": module,
		"paid":   paid,
	})
}

// GetFeatureUsage evaluates one feature against the org's effective tier and
// returns the full decision, including remaining headroom.
func (s *Server) GetFeatureUsage(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	module, ok := moduleFromPath(c)
	if !ok {
		return
	}

	feature, ok := s.featureOf(module, strings.TrimSpace(c.Param("feature")))
	if !ok {
		AbortWithError(c, newValidationError("feature", "invalid_feature", "unknown feature"))
		return
	}

	decision, err := s.entitlementSvc.FeatureUsage(c.Request.Context(), orgID, module, feature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"module":   module,
		"feature":  feature,
		"decision": decision,
	})
}

// featureOf rejects feature names outside the catalog before they reach the
// evaluator, which treats an unknown triple as a configuration failure.
func (s *Server) featureOf(module catalog.Module, raw string) (catalog.Feature, bool) {
	for _, feature := range s.catalog.Features(module) {
		if string(feature) == raw {
			return feature, true
		}
	}
	return "", false
}
