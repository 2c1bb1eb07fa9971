// Package handler exposes the submission wizard and the review panel over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studentportal/internal/auth"
	"studentportal/internal/imagehost"
	"studentportal/internal/metrics"
	"studentportal/internal/record"
	"studentportal/internal/review"
	"studentportal/internal/session"
	"studentportal/internal/wizard"
)

// Options configures a Handler.
type Options struct {
	Store    record.Store
	Uploader imagehost.Uploader
	Notifier wizard.Notifier
	Exporter review.Exporter

	// RedisHealthy reports cache/queue connectivity; nil means redis is not in use.
	RedisHealthy func(ctx context.Context) bool

	MaxImageBytes int
	SessionTTL    time.Duration

	AdminPasswordHash string
	JWTIssuer         string
	JWTSigningKey     string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
}

// Handler holds the live wizard and panel sessions.
type Handler struct {
	opts    Options
	wizards *session.Registry[*wizard.Wizard]
	panels  *session.Registry[*review.Panel]
}

// New creates a handler with empty session registries.
func New(opts Options) *Handler {
	if opts.Uploader == nil {
		opts.Uploader = imagehost.Disabled{}
	}
	return &Handler{
		opts:    opts,
		wizards: session.New[*wizard.Wizard](opts.SessionTTL),
		panels:  session.New[*review.Panel](opts.SessionTTL),
	}
}

// Register mounts every route on r. Middleware in extra runs only on the
// public wizard and login routes (rate limiting).
func (h *Handler) Register(r gin.IRouter, extra ...gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api", extra...)
	{
		wz := api.Group("/wizard")
		wz.POST("", h.CreateWizard)
		wz.GET("/:id", h.GetWizard)
		wz.DELETE("/:id", h.DeleteWizard)
		wz.PATCH("/:id", h.EditWizard)
		wz.POST("/:id/next", h.NextStep)
		wz.POST("/:id/back", h.PrevStep)
		wz.PUT("/:id/image", h.AttachImage)
		wz.DELETE("/:id/image", h.DetachImage)
		wz.POST("/:id/submit", h.Submit)

		api.POST("/admin/login", h.Login)
		api.POST("/admin/refresh", h.Refresh)
	}

	admin := r.Group("/api/admin", auth.RequireRole(h.opts.JWTSigningKey, h.opts.JWTIssuer, auth.RoleAdmin))
	{
		admin.POST("/panels", h.CreatePanel)
		admin.GET("/panels/:id", h.GetPanel)
		admin.DELETE("/panels/:id", h.DeletePanel)
		admin.PUT("/panels/:id/school", h.SelectSchool)
		admin.POST("/panels/:id/expand/:index", h.ToggleExpand)
		admin.POST("/panels/:id/reload", h.ReloadPanel)
		admin.GET("/panels/:id/export", h.Export)
		admin.GET("/records", h.ListRecords)
	}
}

// Healthz reports store, redis and uploader status.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	storeHealthy := true
	if p, ok := h.opts.Store.(record.Pinger); ok {
		storeHealthy = p.Ping(ctx) == nil
	}
	if !storeHealthy {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"status": "ok", "store": storeHealthy}
	if h.opts.RedisHealthy != nil {
		redisHealthy := h.opts.RedisHealthy(ctx)
		body["redis"] = redisHealthy
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
	}
	_, disabled := h.opts.Uploader.(imagehost.Disabled)
	body["uploader"] = !disabled
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// Sweep drops idle sessions every interval until ctx is done.
func (h *Handler) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.wizards.Sweep()
			h.panels.Sweep()
			h.updateSessionGauges()
		}
	}
}

func (h *Handler) updateSessionGauges() {
	metrics.ActiveSessions.WithLabelValues("wizard").Set(float64(h.wizards.Len()))
	metrics.ActiveSessions.WithLabelValues("panel").Set(float64(h.panels.Len()))
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
