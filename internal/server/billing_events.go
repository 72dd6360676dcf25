package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	"github.com/smallbiznis/bizsuite/pkg/db/pagination"
)

// ListModuleEvents pages the accepted-event audit trail for one module, in
// provider sequence order.
func (s *Server) ListModuleEvents(c *gin.Context) {
	orgID, ok := orgIDFrom(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	module, ok := moduleFromPath(c)
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if page.PageSize <= 0 {
		page.PageSize = 10
	}

	var afterSequence int64
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
			return
		}
		afterSequence, err = strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
			return
		}
	}

	// Fetch one extra row to learn whether another page exists.
	entries, err := s.paymentRepo.ListLog(c.Request.Context(), s.db, orgID, string(module), afterSequence, page.PageSize+1)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageRefs := make([]*paymentdomain.SubscriptionEventLog, len(entries))
	for i := range entries {
		pageRefs[i] = &entries[i]
	}
	info := pagination.BuildCursorPageInfo(pageRefs, int32(page.PageSize), func(entry *paymentdomain.SubscriptionEventLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: strconv.FormatInt(entry.Sequence, 10),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(entries) > page.PageSize {
		entries = entries[:page.PageSize]
	}

	c.JSON(http.StatusOK, gin.H{
		"events":    entries,
		"page_info": info,
	})
}
