package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oro-os/backend/internal/model"
)

// AuditLister reads the connection audit log.
type AuditLister interface {
	ListRecent(ctx context.Context, limit int) ([]*model.ParticipantRecord, error)
}

// AuditHandler serves the connection audit log.
type AuditHandler struct {
	lister AuditLister
}

// NewAuditHandler creates a new AuditHandler. A nil lister means auditing
// is disabled.
func NewAuditHandler(lister AuditLister) *AuditHandler {
	return &AuditHandler{lister: lister}
}

// AuditResponse is the body of GET /api/audit/recent.
type AuditResponse struct {
	Count   int                        `json:"count"`
	Records []*model.ParticipantRecord `json:"records"`
}

// Recent handles GET /api/audit/recent?limit=n.
func (h *AuditHandler) Recent(c *gin.Context) {
	if h.lister == nil {
		sendError(c, http.StatusServiceUnavailable, "AUDIT_DISABLED", "Connection auditing is disabled")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.lister.ListRecent(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list audit records: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, AuditResponse{
		Count:   len(records),
		Records: records,
	})
}

// RegisterRoutes registers the audit route.
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/audit/recent", h.Recent)
}
