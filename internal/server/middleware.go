package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizsuite/internal/orgcontext"
)

const (
	HeaderOrg       = "X-Org-ID"
	contextOrgIDKey = "org_id"
)

// OrgContext resolves the active organization from the X-Org-ID header and
// threads it through the request context. Every /api route is org-scoped;
// there is no ambient default tenant.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			AbortWithError(c, newValidationError("org_id", "missing_org_id", "missing X-Org-ID header"))
			return
		}

		orgID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid X-Org-ID header"))
			return
		}

		c.Set(contextOrgIDKey, orgID)
		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), orgID))
		c.Next()
	}
}

func orgIDFrom(c *gin.Context) (snowflake.ID, bool) {
	if value, exists := c.Get(contextOrgIDKey); exists {
		if id, ok := value.(snowflake.ID); ok {
			return id, true
		}
	}
	return orgcontext.OrgIDFromContext(c.Request.Context())
}
