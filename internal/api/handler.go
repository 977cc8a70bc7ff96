package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bom-order-service/internal/export"
	"bom-order-service/internal/kicad"
	"bom-order-service/internal/models"
	"bom-order-service/internal/repository"
	"bom-order-service/internal/service"
	"bom-order-service/internal/util"
	"bom-order-service/internal/vendor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TokenWriter stores the result of a vendor OAuth handshake
type TokenWriter interface {
	SetVendorToken(ctx context.Context, vendor, token string, ttl time.Duration) error
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	bomService   *service.BOMService
	orderService *service.OrderService
	registry     *vendor.Registry
	tokens       TokenWriter
	dependencies map[string]Pinger
	requisition  *export.Requisition
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	bomService *service.BOMService,
	orderService *service.OrderService,
	registry *vendor.Registry,
	tokens TokenWriter,
	dependencies map[string]Pinger,
) *Handler {
	return &Handler{
		bomService:   bomService,
		orderService: orderService,
		registry:     registry,
		tokens:       tokens,
		dependencies: dependencies,
		requisition:  export.NewRequisition(export.DigikeyForm),
		logger:       util.ComponentLogger("api"),
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
		v1.POST("/boms", h.uploadBOM)
		v1.GET("/boms", h.listBOMs)
		v1.GET("/boms/:id", h.getBOM)
		v1.POST("/boms/:id/resolve", h.resolveBOM)

		v1.GET("/parts", h.searchParts)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PUT("/orders/:id/lines", h.updateLines)
		v1.POST("/orders/:id/archive", h.archiveOrder)
		v1.GET("/orders/:id/cart.csv", h.exportCart)
		v1.GET("/orders/:id/requisition.zip", h.exportRequisition)

		v1.GET("/vendors", h.listVendors)
		v1.PUT("/vendors/:vendor/token", h.setVendorToken)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// uploadBOM handles multipart schematic archive uploads
func (h *Handler) uploadBOM(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing archive file",
			"details": err.Error(),
		})
		return
	}

	var userID int64
	if raw := c.PostForm("user_id"); raw != "" {
		userID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}
	}

	file, err := header.Open()
	if err != nil {
		h.respondError(c, "Failed to read archive", err)
		return
	}
	defer file.Close()

	bom, err := h.bomService.UploadBOM(c.Request.Context(), &service.UploadBOMRequest{
		Name:        c.PostForm("name"),
		Version:     c.PostForm("version"),
		UserID:      userID,
		ArchiveName: header.Filename,
		Archive:     file,
		Size:        header.Size,
	})
	if err != nil {
		h.respondError(c, "Failed to ingest archive", err)
		return
	}

	c.JSON(http.StatusCreated, bom)
}

func (h *Handler) listBOMs(c *gin.Context) {
	boms, err := h.bomService.ListBOMs(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list BOMs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boms": boms})
}

func (h *Handler) getBOM(c *gin.Context) {
	bomID, ok := pathID(c)
	if !ok {
		return
	}

	bom, err := h.bomService.GetBOM(c.Request.Context(), bomID)
	if err != nil {
		h.respondError(c, "BOM not found", err)
		return
	}
	c.JSON(http.StatusOK, bom)
}

// resolveBOM runs a resolution pass and returns its report
func (h *Handler) resolveBOM(c *gin.Context) {
	bomID, ok := pathID(c)
	if !ok {
		return
	}

	report, err := h.bomService.ResolveBOM(c.Request.Context(), bomID)
	if err != nil {
		h.respondError(c, "Failed to resolve BOM", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) searchParts(c *gin.Context) {
	parts, err := h.bomService.SearchParts(c.Request.Context(), c.QueryArray("manufacturer"), c.Query("mpn"))
	if err != nil {
		h.respondError(c, "Failed to search parts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parts": parts})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to create order", err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, "Order not found", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type lineCount struct {
	ID            int64 `json:"id" binding:"required"`
	NumberOrdered *int  `json:"number_ordered" binding:"required"`
}

type updateLinesRequest struct {
	Lines []lineCount `json:"lines" binding:"required,min=1,dive"`
}

// updateLines changes number_ordered of selected lines
func (h *Handler) updateLines(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req updateLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	counts := make(map[int64]int, len(req.Lines))
	for _, l := range req.Lines {
		counts[l.ID] = *l.NumberOrdered
	}
	if err := h.orderService.UpdateOrderedCounts(c.Request.Context(), orderID, counts); err != nil {
		h.respondError(c, "Failed to update order", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) archiveOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.orderService.ArchiveOrder(c.Request.Context(), orderID); err != nil {
		h.respondError(c, "Failed to archive order", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportCart(c *gin.Context) {
	h.exportFile(c, "text/csv", export.DigikeyCart)
}

func (h *Handler) exportRequisition(c *gin.Context) {
	h.exportFile(c, "application/zip", h.requisition.Export)
}

func (h *Handler) exportFile(c *gin.Context, contentType string, render func(export.LineSource) (string, []byte, error)) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	src, err := h.orderService.ExportSource(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, "Order not found", err)
		return
	}
	name, body, err := render(src)
	if err != nil {
		h.respondError(c, "Failed to export order", err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Data(http.StatusOK, contentType, body)
}

type vendorStatus struct {
	Name          string `json:"name"`
	Authenticated bool   `json:"authenticated"`
}

func (h *Handler) listVendors(c *gin.Context) {
	names := h.registry.Names()
	out := make([]vendorStatus, 0, len(names))
	for _, name := range names {
		adapter, err := h.registry.Get(name)
		if err != nil {
			continue
		}
		out = append(out, vendorStatus{Name: name, Authenticated: adapter.IsAuthenticated(c.Request.Context())})
	}
	c.JSON(http.StatusOK, gin.H{"vendors": out})
}

type tokenRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
	ExpiresIn   int64  `json:"expires_in" binding:"min=0"`
}

// setVendorToken stores the access token produced by the external OAuth flow
func (h *Handler) setVendorToken(c *gin.Context) {
	name := c.Param("vendor")
	if _, err := h.registry.Get(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Unknown vendor",
			"details": err.Error(),
		})
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ttl := time.Duration(req.ExpiresIn) * time.Second
	if err := h.tokens.SetVendorToken(c.Request.Context(), name, req.AccessToken, ttl); err != nil {
		h.respondError(c, "Failed to store token", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ID",
		})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors onto HTTP status codes
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	var parseErr *kicad.ParseError
	switch {
	case errors.As(err, &parseErr), errors.Is(err, service.ErrEmptyOrder):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrResolutionInProgress), errors.Is(err, service.ErrOrderArchived):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidQuantity):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
