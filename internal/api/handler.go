package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/schema"
	"catalog-service/internal/scope"
	"catalog-service/internal/service"
	"catalog-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the handlers' collaborators.
type Services struct {
	Catalog     *service.CatalogService
	Options     *service.OptionService
	Identifiers *service.IdentifierService
	Assets      *service.AssetService
	Sessions    *service.SessionService
	Products    *service.ProductService
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	deps   map[string]Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler. deps are pinged by /ready.
func NewHandler(svc Services, deps map[string]Pinger) *Handler {
	return &Handler{
		svc:    svc,
		deps:   deps,
		logger: util.ComponentLogger("api"),
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
	v1.Use(scope.Middleware())
	{
		v1.GET("/schema", h.getSchema)
		v1.POST("/options", h.extendOptions)
		v1.GET("/options/:id", h.getOptionSet)
		v1.GET("/identifiers/check", h.checkIdentifier)
		v1.POST("/variants/matrix", h.buildMatrix)

		v1.POST("/assets/allocate", h.allocateAssets)
		v1.POST("/assets/resolve", h.resolveAssets)
		v1.POST("/assets/delete", h.deleteAssets)

		v1.POST("/sessions", h.createSession)
		v1.GET("/sessions/:id", h.getSession)
		v1.POST("/sessions/:id/actions", h.applyAction)
		v1.POST("/sessions/:id/submit", h.submitSession)
		v1.DELETE("/sessions/:id", h.closeSession)

		v1.GET("/products/:id/variants", h.getProductVariants)
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
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	ready := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// getSchema synthesizes the variant attribute schema of a sub-category
func (h *Handler) getSchema(c *gin.Context) {
	var req schema.Request
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "Invalid query", err)
		return
	}
	req.StoreID = scope.Store(c.Request.Context())

	sc, err := h.svc.Catalog.Schema(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to synthesize schema", err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

// extendOptions adds a value to an attribute option set
func (h *Handler) extendOptions(c *gin.Context) {
	var req service.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.svc.Options.Extend(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "Failed to extend option set", err)
		return
	}

	code := http.StatusOK
	if resp.Created {
		code = http.StatusCreated
	}
	c.JSON(code, resp)
}

// getOptionSet returns one option set
func (h *Handler) getOptionSet(c *gin.Context) {
	set, err := h.svc.Options.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Option set not available", err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// checkIdentifier answers whether an external code is already used
func (h *Handler) checkIdentifier(c *gin.Context) {
	resp, err := h.svc.Identifiers.Check(c.Request.Context(), c.Query("type"), c.Query("value"))
	if err != nil {
		h.fail(c, "Failed to check identifier", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// buildMatrix expands a variation selection into rows without a session
func (h *Handler) buildMatrix(c *gin.Context) {
	var req service.MatrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}
	req.StoreID = scope.Store(c.Request.Context())

	res, err := h.svc.Catalog.BuildMatrix(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to build variant matrix", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// allocateAssets reserves upload slots. 201 when at least one file was
// allocated, 422 when none was.
func (h *Handler) allocateAssets(c *gin.Context) {
	var req service.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	report, err := h.svc.Assets.Allocate(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "Failed to allocate assets", err)
		return
	}

	code := http.StatusCreated
	if report.Succeeded == 0 {
		code = http.StatusUnprocessableEntity
	}
	c.JSON(code, report)
}

// resolveAssets maps asset ids to URLs
func (h *Handler) resolveAssets(c *gin.Context) {
	var req service.IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	res, err := h.svc.Assets.Resolve(c.Request.Context(), req.IDs)
	if err != nil {
		h.fail(c, "Failed to resolve assets", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// deleteAssets marks assets deleted
func (h *Handler) deleteAssets(c *gin.Context) {
	var req service.IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	report, err := h.svc.Assets.Delete(c.Request.Context(), req.IDs)
	if err != nil {
		h.fail(c, "Failed to delete assets", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// createSession opens an editing session
func (h *Handler) createSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	view, err := h.svc.Sessions.Create(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "Failed to open session", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// getSession returns a session, grouped by ?groupBy= when given
func (h *Handler) getSession(c *gin.Context) {
	view, err := h.svc.Sessions.Get(c.Request.Context(), c.Param("id"), c.Query("groupBy"))
	if err != nil {
		h.fail(c, "Session not available", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// applyAction runs one edit against a session
func (h *Handler) applyAction(c *gin.Context) {
	var req service.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	view, err := h.svc.Sessions.Apply(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.fail(c, "Failed to apply action", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// submitSession persists the session's variants
func (h *Handler) submitSession(c *gin.Context) {
	res, err := h.svc.Sessions.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to save variants", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// closeSession discards a session
func (h *Handler) closeSession(c *gin.Context) {
	if err := h.svc.Sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "Failed to close session", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getProductVariants lists the saved variants of a product
func (h *Handler) getProductVariants(c *gin.Context) {
	records, err := h.svc.Products.Variants(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to load variants", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"productId": c.Param("id"),
		"variants":  records,
	})
}

func (h *Handler) badRequest(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body := gin.H{
		"error":   msg,
		"details": err.Error(),
	}
	var invalid *service.InvalidSessionError
	if errors.As(err, &invalid) {
		body["errors"] = invalid.Errors
	}
	c.JSON(code, body)
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrVariantNotFound),
		errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInactive),
		errors.Is(err, models.ErrNotEditable),
		errors.Is(err, models.ErrDuplicateIdentifier),
		errors.Is(err, models.ErrDuplicateVariant),
		errors.Is(err, redisclient.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, models.ErrNoSizeOptionsFound),
		errors.Is(err, models.ErrAttributeNotApplicable),
		errors.Is(err, models.ErrValidationFailed),
		errors.Is(err, models.ErrReadOnlyField):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
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
