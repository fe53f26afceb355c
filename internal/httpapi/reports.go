package httpapi

import (
	"errors"
	"net/http"
	"time"

	"clinic-voice-bridge/internal/rbac"
	"clinic-voice-bridge/internal/reporting"
	"clinic-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultReportWindow = 24 * time.Hour

// genericTenant selects tenant-less calls in a super_admin report filter.
const genericTenant = "generic"

// CallsReport summarizes call outcomes over ?from=&to= (RFC 3339).
// RBAC: operator, viewer (own tenant) or super_admin.
func (h Handlers) CallsReport(c *gin.Context) {
	req, ok := h.reportRequest(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), req)
	if err != nil {
		h.reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// BookingsReport relates booking outcomes to calls over the same window.
func (h Handlers) BookingsReport(c *gin.Context) {
	req, ok := h.reportRequest(c)
	if !ok {
		return
	}
	out, err := h.Reports.BookingMetrics(c.Request.Context(), req)
	if err != nil {
		h.reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) reportRequest(c *gin.Context) (reporting.CallsSummaryRequest, bool) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return reporting.CallsSummaryRequest{}, false
	}
	tenantID, all, err := rbac.TenantScope(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return reporting.CallsSummaryRequest{}, false
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	to := now().UTC()
	from := to.Add(-defaultReportWindow)
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return reporting.CallsSummaryRequest{}, false
		}
		from = to.Add(-defaultReportWindow)
	}
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return reporting.CallsSummaryRequest{}, false
		}
	}

	req := reporting.CallsSummaryRequest{TenantID: tenantID, Range: reporting.TimeRange{From: from, To: to}}
	if all {
		switch f := c.Query("tenant_id"); f {
		case "":
			req.AllTenants = true
		case genericTenant:
			req.TenantID = ""
		default:
			req.TenantID = f
		}
	}
	return req, true
}

func (h Handlers) reportError(c *gin.Context, err error) {
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid report range"})
		return
	}
	logger.FromGin(c).Error("report failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
}
