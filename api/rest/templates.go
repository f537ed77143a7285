package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/onboardly/questengine/quest/template"
	"go.uber.org/zap"
)

// TemplateHandler exposes the read-only template catalog.
type TemplateHandler struct {
	store  *template.Store
	logger *zap.Logger
}

// NewTemplateHandler creates a TemplateHandler.
func NewTemplateHandler(store *template.Store, logger *zap.Logger) *TemplateHandler {
	return &TemplateHandler{store: store, logger: logger}
}

// List handles GET /api/templates.
func (h *TemplateHandler) List(c *gin.Context) {
	tpls, err := h.store.ListActiveTemplates(c.Request.Context())
	if err != nil {
		h.logger.Error("list templates failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": tpls})
}

// Get handles GET /api/templates/:id.
func (h *TemplateHandler) Get(c *gin.Context) {
	tpl, err := h.store.GetActiveTemplate(c.Request.Context(), c.Param("id"))
	if errors.Is(err, template.ErrTemplateNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	if err != nil {
		h.logger.Error("get template failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}
