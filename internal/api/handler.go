package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sgp-service/internal/models"
	"sgp-service/internal/service"
	"sgp-service/internal/store"
	"sgp-service/internal/util"
	"sgp-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services groups what the handlers depend on
type Services struct {
	Proposals *service.ProposalService
	Alerts    *service.AlertService
	Inbox     *service.Inbox
	Stats     *service.StatsService
	Catalog   *store.Repository
	Scheduler worker.TickRunner
	// Ready reports whether backing services are reachable. Optional.
	Ready func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services) *Handler {
	return &Handler{
		svc:    svc,
		logger: util.GetLogger().Named("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/propostas", h.listProposals)
		v1.POST("/propostas", h.createProposal)
		v1.GET("/propostas/vencendo", h.expiringProposals)
		v1.GET("/propostas/vencidas", h.overdueProposals)
		v1.GET("/propostas/:id", h.getProposal)
		v1.PUT("/propostas/:id", h.updateProposal)
		v1.PATCH("/propostas/:id/status", h.setProposalStatus)
		v1.POST("/propostas/:id/renovacao", h.requestRenewal)

		v1.GET("/alertas", h.listAlerts)
		v1.POST("/alertas", h.createAlert)
		v1.GET("/alertas/resumo", h.alertSummary)
		v1.GET("/alertas/nao-lidos", h.unreadCount)
		v1.POST("/alertas/lidos", h.markAllRead)
		v1.DELETE("/alertas/lidos", h.clearRead)
		v1.PATCH("/alertas/:id/lido", h.markRead)
		v1.DELETE("/alertas/:id", h.deleteAlert)

		v1.GET("/produtos", h.listProducts)
		v1.GET("/produtos/:id", h.getProduct)
		v1.GET("/fornecedores", h.listSuppliers)
		v1.GET("/fornecedores/:id", h.getSupplier)
		v1.GET("/estatisticas", h.stats)

		v1.POST("/monitor/run", h.runMonitor)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.svc.Ready != nil {
		if err := h.svc.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"details": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProposals handles GET /propostas?search=&status=
func (h *Handler) listProposals(c *gin.Context) {
	if numero := c.Query("numero"); numero != "" {
		h.findProposalByNumber(c, numero)
		return
	}
	proposals, err := h.svc.Proposals.List(c.Request.Context(), c.Query("search"), models.ProposalStatus(c.Query("status")))
	if err != nil {
		h.respondError(c, "Failed to list proposals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proposals, "total": len(proposals)})
}

// findProposalByNumber answers GET /propostas?numero= with zero or one match
func (h *Handler) findProposalByNumber(c *gin.Context, numero string) {
	proposal, err := h.svc.Proposals.FindByNumber(c.Request.Context(), numero)
	if errors.Is(err, service.ErrProposalNotFound) {
		c.JSON(http.StatusOK, gin.H{"data": []*models.Proposal{}, "total": 0})
		return
	}
	if err != nil {
		h.respondError(c, "Failed to find proposal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": []*models.Proposal{proposal}, "total": 1})
}

// createProposal handles proposal creation
func (h *Handler) createProposal(c *gin.Context) {
	var req service.ProposalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	proposal, err := h.svc.Proposals.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to create proposal", err)
		return
	}
	c.JSON(http.StatusCreated, proposal)
}

// getProposal handles get proposal by ID
func (h *Handler) getProposal(c *gin.Context) {
	proposal, err := h.svc.Proposals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get proposal", err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// updateProposal handles full proposal replacement
func (h *Handler) updateProposal(c *gin.Context) {
	var req service.ProposalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	proposal, err := h.svc.Proposals.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, "Failed to update proposal", err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

type statusRequest struct {
	Status models.ProposalStatus `json:"status" binding:"required"`
}

// setProposalStatus handles explicit status transitions
func (h *Handler) setProposalStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	proposal, err := h.svc.Proposals.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, "Failed to change proposal status", err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// requestRenewal handles renewal requests
func (h *Handler) requestRenewal(c *gin.Context) {
	proposal, err := h.svc.Proposals.RequestRenewal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to request renewal", err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// expiringProposals handles GET /propostas/vencendo?dias=
func (h *Handler) expiringProposals(c *gin.Context) {
	days := 0
	if raw := c.Query("dias"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dias parameter"})
			return
		}
		days = n
	}

	proposals, err := h.svc.Proposals.ExpiringSoon(c.Request.Context(), days)
	if err != nil {
		h.respondError(c, "Failed to list expiring proposals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proposals, "total": len(proposals)})
}

// overdueProposals handles GET /propostas/vencidas
func (h *Handler) overdueProposals(c *gin.Context) {
	proposals, err := h.svc.Proposals.Overdue(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list overdue proposals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proposals, "total": len(proposals)})
}

// listAlerts handles GET /alertas?tipo=
func (h *Handler) listAlerts(c *gin.Context) {
	alerts, err := h.svc.Inbox.ListActive(c.Request.Context(), c.Query("tipo"))
	if err != nil {
		h.respondError(c, "Failed to list alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts, "total": len(alerts)})
}

type manualAlertRequest struct {
	Mensagem   string `json:"mensagem" binding:"required"`
	TipoAlerta string `json:"tipo_alerta"`
}

// createAlert handles manual alert creation
func (h *Handler) createAlert(c *gin.Context) {
	var req manualAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	alert, err := h.svc.Alerts.CreateManual(ctx, req.Mensagem, req.TipoAlerta)
	if err != nil {
		h.respondError(c, "Failed to create alert", err)
		return
	}
	if err := h.svc.Inbox.Refresh(ctx); err != nil {
		h.logger.Warn("Failed to refresh unread count", zap.Error(err))
	}
	c.JSON(http.StatusCreated, alert)
}

// alertSummary handles GET /alertas/resumo
func (h *Handler) alertSummary(c *gin.Context) {
	summary, err := h.svc.Inbox.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to summarise alerts", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// unreadCount handles GET /alertas/nao-lidos
func (h *Handler) unreadCount(c *gin.Context) {
	n, err := h.svc.Inbox.UnreadCount(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to count unread alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nao_lidos": n})
}

// markRead handles PATCH /alertas/:id/lido
func (h *Handler) markRead(c *gin.Context) {
	if err := h.svc.Inbox.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "Failed to mark alert read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nao_lidos": h.svc.Inbox.Badge()})
}

// markAllRead handles POST /alertas/lidos
func (h *Handler) markAllRead(c *gin.Context) {
	n, err := h.svc.Inbox.MarkAllRead(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to mark alerts read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"atualizados": n, "nao_lidos": h.svc.Inbox.Badge()})
}

// deleteAlert handles DELETE /alertas/:id (soft delete)
func (h *Handler) deleteAlert(c *gin.Context) {
	if err := h.svc.Inbox.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "Failed to delete alert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nao_lidos": h.svc.Inbox.Badge()})
}

// clearRead handles DELETE /alertas/lidos
func (h *Handler) clearRead(c *gin.Context) {
	n, err := h.svc.Inbox.ClearRead(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to clear read alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removidos": n, "nao_lidos": h.svc.Inbox.Badge()})
}

// listProducts handles GET /produtos?search=
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.respondError(c, "Failed to list products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": products, "total": len(products)})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.svc.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get product", err)
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// listSuppliers handles GET /fornecedores?search=
func (h *Handler) listSuppliers(c *gin.Context) {
	suppliers, err := h.svc.Catalog.ListSuppliers(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.respondError(c, "Failed to list suppliers", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": suppliers, "total": len(suppliers)})
}

func (h *Handler) getSupplier(c *gin.Context) {
	supplier, err := h.svc.Catalog.GetSupplier(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get supplier", err)
		return
	}
	if supplier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Supplier not found"})
		return
	}
	c.JSON(http.StatusOK, supplier)
}

// stats handles GET /estatisticas
func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Stats.Stats(c.Request.Context()))
}

// runMonitor triggers a scheduler tick outside the regular cadence
func (h *Handler) runMonitor(c *gin.Context) {
	result, err := h.svc.Scheduler.RunOnce(c.Request.Context())
	if errors.Is(err, worker.ErrTickInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Monitor already running",
			"details": err.Error(),
		})
		return
	}
	if err != nil {
		h.respondError(c, "Monitor run finished with errors", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondError maps service and store errors onto HTTP statuses
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	var violations service.Violations
	switch {
	case errors.As(err, &violations):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      msg,
			"details":    err.Error(),
			"violations": violations,
		})
		return
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrInvalidAlert):
		c.JSON(http.StatusBadRequest, gin.H{"error": msg, "details": err.Error()})
		return
	case errors.Is(err, service.ErrProposalNotFound), errors.Is(err, service.ErrAlertNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msg, "details": err.Error()})
		return
	case errors.Is(err, service.ErrDuplicateNumber), errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": msg, "details": err.Error()})
		return
	}

	h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
