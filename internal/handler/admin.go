package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"studentportal/internal/auth"
	"studentportal/internal/export"
	"studentportal/internal/metrics"
	"studentportal/internal/record"
	"studentportal/internal/review"
)

const adminSubject = "admin"

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Login exchanges the admin password for access and refresh tokens.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !auth.CheckPassword(h.opts.AdminPasswordHash, req.Password) {
		abortError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.issueTokens(c, http.StatusOK)
}

// Refresh issues a new token pair for a valid refresh token.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	claims, err := auth.Parse(req.RefreshToken, h.opts.JWTSigningKey, h.opts.JWTIssuer)
	if err != nil || claims.Kind != auth.KindRefresh || claims.Role != auth.RoleAdmin {
		abortError(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	h.issueTokens(c, http.StatusOK)
}

func (h *Handler) issueTokens(c *gin.Context, status int) {
	tokens, err := auth.Issue(adminSubject, auth.RoleAdmin, h.opts.JWTIssuer, h.opts.JWTSigningKey, h.opts.AccessTTL, h.opts.RefreshTTL)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "token issue failed")
		return
	}
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

type panelView struct {
	ID       string           `json:"id"`
	Schools  []string         `json:"schools"`
	Selected string           `json:"selected"`
	Records  []record.Student `json:"records"`
	Expanded int              `json:"expanded"`
}

func viewPanel(id string, p *review.Panel) panelView {
	v := p.View()
	return panelView{ID: id, Schools: v.Schools, Selected: v.Selected, Records: v.Records, Expanded: v.Expanded}
}

// CreatePanel mounts a review panel, loading every record once.
func (h *Handler) CreatePanel(c *gin.Context) {
	p := review.NewPanel(h.opts.Store)
	if err := p.Load(c.Request.Context()); err != nil {
		log.Printf("review: load records failed: %v", err)
		abortError(c, http.StatusInternalServerError, "failed to load students")
		return
	}
	id := h.panels.Create(p)
	h.updateSessionGauges()
	c.JSON(http.StatusCreated, viewPanel(id, p))
}

func (h *Handler) panel(c *gin.Context) (*review.Panel, bool) {
	p, ok := h.panels.Get(c.Param("id"))
	if !ok {
		abortError(c, http.StatusNotFound, "panel session not found")
		return nil, false
	}
	return p, true
}

// GetPanel returns the current view.
func (h *Handler) GetPanel(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewPanel(c.Param("id"), p))
}

// DeletePanel unmounts the panel.
func (h *Handler) DeletePanel(c *gin.Context) {
	if !h.panels.Delete(c.Param("id")) {
		abortError(c, http.StatusNotFound, "panel session not found")
		return
	}
	h.updateSessionGauges()
	c.Status(http.StatusNoContent)
}

type schoolRequest struct {
	School string `json:"school"`
}

// SelectSchool changes the filter and collapses the expanded record.
func (h *Handler) SelectSchool(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	var req schoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.SelectSchool(req.School); err != nil {
		reviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewPanel(c.Param("id"), p))
}

// ToggleExpand expands the record at index, or collapses it when already expanded.
func (h *Handler) ToggleExpand(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := p.ToggleExpand(idx); err != nil {
		reviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewPanel(c.Param("id"), p))
}

// ReloadPanel re-fetches the collection.
func (h *Handler) ReloadPanel(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	if err := p.Load(c.Request.Context()); err != nil {
		log.Printf("review: reload records failed: %v", err)
		abortError(c, http.StatusInternalServerError, "failed to load students")
		return
	}
	c.JSON(http.StatusOK, viewPanel(c.Param("id"), p))
}

// Export streams the zip bundle for the selected school.
func (h *Handler) Export(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	bundle, err := p.Export(c.Request.Context(), h.opts.Exporter)
	if err != nil {
		reviewError(c, err)
		return
	}
	metrics.Exports.WithLabelValues("ok").Inc()
	if n := len(bundle.Failures); n > 0 {
		c.Header("X-Image-Failures", strconv.Itoa(n))
	}
	c.Header("Content-Disposition", `attachment; filename="`+bundle.Filename+`"`)
	c.Data(http.StatusOK, "application/zip", bundle.Data)
}

// ListRecords returns every record, or those of one school when ?school= is set.
func (h *Handler) ListRecords(c *gin.Context) {
	records, err := h.opts.Store.ListAll(c.Request.Context())
	if err != nil {
		log.Printf("records: list failed: %v", err)
		abortError(c, http.StatusInternalServerError, "failed to load students")
		return
	}
	schools := record.Schools(records)
	if school, ok := c.GetQuery("school"); ok {
		records = record.BySchool(records, school)
	}
	if records == nil {
		records = []record.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "schools": schools})
}

func reviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, export.ErrNoRecords):
		metrics.Exports.WithLabelValues("empty").Inc()
		abortError(c, http.StatusUnprocessableEntity, "no students to download")
	case errors.Is(err, review.ErrNoSchool):
		metrics.Exports.WithLabelValues("empty").Inc()
		abortError(c, http.StatusUnprocessableEntity, "no students to download")
	case errors.Is(err, review.ErrBusy):
		metrics.Exports.WithLabelValues("busy").Inc()
		abortError(c, http.StatusConflict, err.Error())
	case errors.Is(err, review.ErrIndexOutOfRange):
		abortError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, review.ErrUnknownSchool):
		abortError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.Exports.WithLabelValues("failed").Inc()
		abortError(c, http.StatusGatewayTimeout, "export timed out")
	default:
		metrics.Exports.WithLabelValues("failed").Inc()
		log.Printf("review: export failed: %v", err)
		abortError(c, http.StatusInternalServerError, "failed to create zip file")
	}
}
