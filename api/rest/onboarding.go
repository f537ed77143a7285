package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/onboardly/questengine/middleware"
	"github.com/onboardly/questengine/quest/progress"
	"github.com/onboardly/questengine/quest/template"
	"go.uber.org/zap"
)

// OnboardingHandler exposes the per-user onboarding state machine.
type OnboardingHandler struct {
	tracker *progress.Tracker
	logger  *zap.Logger
}

// NewOnboardingHandler creates an OnboardingHandler.
func NewOnboardingHandler(tracker *progress.Tracker, logger *zap.Logger) *OnboardingHandler {
	return &OnboardingHandler{tracker: tracker, logger: logger}
}

type startRequest struct {
	TemplateID string `json:"template_id"`
}

// Start handles POST /api/onboarding/start.
// Starting twice returns the existing progress unchanged.
func (h *OnboardingHandler) Start(c *gin.Context) {
	userID := mw.GetUserID(c)

	// An empty or absent body selects the default template.
	var req startRequest
	_ = c.ShouldBindJSON(&req)

	if _, err := h.tracker.Initialize(c.Request.Context(), userID, req.TemplateID); err != nil {
		h.fail(c, err)
		return
	}
	h.renderView(c, http.StatusOK)
}

// Progress handles GET /api/onboarding/progress.
func (h *OnboardingHandler) Progress(c *gin.Context) {
	h.renderView(c, http.StatusOK)
}

// NextStep handles GET /api/onboarding/next-step.
// Returns null when every step is terminal.
func (h *OnboardingHandler) NextStep(c *gin.Context) {
	userID := mw.GetUserID(c)
	ctx := c.Request.Context()

	p, err := h.tracker.GetProgress(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	tpl, err := h.tracker.Template(ctx, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next_step": progress.NextStep(p, tpl)})
}

// CompleteStep handles POST /api/onboarding/steps/:id/complete.
func (h *OnboardingHandler) CompleteStep(c *gin.Context) {
	userID := mw.GetUserID(c)
	stepID := c.Param("id")

	if _, err := h.tracker.CompleteStep(c.Request.Context(), userID, stepID); err != nil {
		h.fail(c, err)
		return
	}
	h.renderView(c, http.StatusOK)
}

// SkipStep handles POST /api/onboarding/steps/:id/skip.
func (h *OnboardingHandler) SkipStep(c *gin.Context) {
	userID := mw.GetUserID(c)
	stepID := c.Param("id")

	if _, err := h.tracker.SkipStep(c.Request.Context(), userID, stepID); err != nil {
		h.fail(c, err)
		return
	}
	h.renderView(c, http.StatusOK)
}

// renderView fetches the current record and responds with the full
// derived snapshot, so every mutation returns the same shape as a read.
func (h *OnboardingHandler) renderView(c *gin.Context, status int) {
	userID := mw.GetUserID(c)
	ctx := c.Request.Context()

	p, err := h.tracker.GetProgress(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	tpl, err := h.tracker.Template(ctx, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	view, err := progress.BuildView(p, tpl)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, view)
}

// fail maps domain errors to HTTP status codes.
func (h *OnboardingHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, progress.ErrProgressNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "onboarding not started"})
	case errors.Is(err, progress.ErrStepNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "step not in template"})
	case errors.Is(err, template.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
	case errors.Is(err, progress.ErrCannotSkipRequiredStep):
		c.JSON(http.StatusConflict, gin.H{"error": "required step cannot be skipped"})
	case errors.Is(err, progress.ErrAlreadyTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "onboarding already completed"})
	case errors.Is(err, progress.ErrPersistenceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		h.logger.Error("onboarding request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
