// Yantra API handlers
// Thin gin adapters over the submission, compiler, and template services.

package handlers

import (
	"errors"
	"net/http"

	"yantra/internal/compilers"
	"yantra/internal/config"
	"yantra/internal/middleware"
	"yantra/internal/staging"
	"yantra/internal/submissions"
	"yantra/internal/templates"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Handler bundles the service dependencies for all routes.
type Handler struct {
	Submissions *submissions.Service
	Compilers   *compilers.Service
	Templates   *templates.Service
}

// NewHandler creates a handler with its service dependencies.
func NewHandler(sub *submissions.Service, comp *compilers.Service, tmpl *templates.Service) *Handler {
	return &Handler{Submissions: sub, Compilers: comp, Templates: tmpl}
}

// SetupRouter builds the gin engine with all Yantra routes. Submissions are
// rate limited per client IP; the management routes are not.
func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(cors.Default())

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.SubmitRatePerSec), cfg.SubmitRateBurst)

	submit := router.Group("/submit")
	submit.Use(limiter.Middleware())
	{
		submit.POST("", h.SubmitCode)
		submit.GET("/results/:job_id", h.GetResults)
	}

	comp := router.Group("/compilers")
	{
		comp.POST("", h.CreateCompiler)
		comp.GET("", h.ListCompilers)
		comp.GET("/:id", h.GetCompiler)
		comp.PUT("/:id", h.UpdateCompiler)
		comp.DELETE("/:id", h.DeleteCompiler)
		comp.POST("/:id/build", h.TriggerBuild)
		comp.GET("/:id/logs", h.GetBuildLogs)
	}

	tmpl := router.Group("/templates")
	{
		tmpl.POST("", h.CreateTemplate)
		tmpl.GET("", h.ListTemplates)
		tmpl.GET("/:id", h.GetTemplate)
		tmpl.DELETE("/:id", h.DeleteTemplate)
	}

	return router
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "yantra-api"})
}

// respondError maps service errors onto the HTTP contract: not-found errors
// become 404, validation errors 400, everything else 500. The error body is
// always {"detail": message}.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, compilers.ErrNotFound), errors.Is(err, templates.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, compilers.ErrDuplicateID),
		errors.Is(err, compilers.ErrNothingToUpdate),
		errors.Is(err, templates.ErrDuplicateID),
		errors.Is(err, submissions.ErrLanguageNotFound),
		errors.Is(err, submissions.ErrLanguageDisabled),
		errors.Is(err, submissions.ErrLanguageNotReady),
		errors.Is(err, staging.ErrTooManyFiles),
		errors.Is(err, staging.ErrEmptyFile),
		errors.Is(err, staging.ErrSizeLimitExceeded),
		errors.Is(err, staging.ErrExtensionNotAllowed):
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{"detail": err.Error()})
}
