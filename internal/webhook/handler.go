package webhook

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trafficops_backend/platform/httpkit"
	"trafficops_backend/platform/logger"
	"trafficops_backend/platform/validator"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
	log     *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, repo *Repository, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, repo: repo, val: val, log: log}
}

// HandleAmoCRMWebhook processes an inbound deal webhook.
// POST /api/v1/webhook/amocrm
//
// Always answers 200: the CRM retries non-200 responses indefinitely, and
// once the audit log has the attempt a retry only produces noise.
func (h *Handler) HandleAmoCRMWebhook(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("unparseable webhook payload", "error", err, "client_ip", c.ClientIP())
		c.JSON(http.StatusOK, Response{
			Success:   false,
			Results:   BatchResult{},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	results := h.service.ProcessBatch(c.Request.Context(), req.Leads, c.ClientIP())
	c.JSON(http.StatusOK, Response{
		Success:   results.Failed == 0,
		Results:   results,
		Timestamp: time.Now().UTC(),
	})
}

// HandleWebhookTest confirms the endpoint is reachable, for wiring checks
// from the CRM settings UI.
// GET /api/v1/webhook/amocrm
func (h *Handler) HandleWebhookTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "webhook endpoint is reachable",
		"timestamp": time.Now().UTC(),
	})
}

// ListLogsQuery is the admin audit query.
type ListLogsQuery struct {
	Decision string `form:"decision" validate:"omitempty,oneof=referral traffic both unknown"`
	Status   string `form:"status" validate:"omitempty,oneof=success error partial"`
	From     string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=500"`
	Offset   int    `form:"offset" validate:"omitempty,min=0"`
}

// window converts the date bounds to a half-open received_at range. The
// "to" date is inclusive through end of day.
func (q ListLogsQuery) window() (from, to time.Time) {
	if q.From != "" {
		from, _ = time.Parse("2006-01-02", q.From)
	}
	if q.To != "" {
		to, _ = time.Parse("2006-01-02", q.To)
		to = to.AddDate(0, 0, 1).Add(-time.Second)
	}
	return from, to
}

// HandleListLogs returns recent audit entries, newest first.
// GET /api/v1/admin/webhook/logs
func (h *Handler) HandleListLogs(c *gin.Context) {
	var q ListLogsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query parameters", nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	from, to := q.window()
	entries, err := h.repo.List(c.Request.Context(), LogFilter{
		Decision: q.Decision,
		Status:   q.Status,
		From:     from,
		To:       to,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"logs": entries, "count": len(entries)})
}

// HandleLogStats returns audit counts grouped by processing status.
// GET /api/v1/admin/webhook/logs/stats
func (h *Handler) HandleLogStats(c *gin.Context) {
	counts, err := h.repo.CountByStatus(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"byStatus": counts})
}
