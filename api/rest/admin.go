package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/onboardly/questengine/analytics"
	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/quest/progress"
	"github.com/onboardly/questengine/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db      *gorm.DB
	tracker *progress.Tracker
	events  *analytics.Service
	sched   *scheduler.Scheduler
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	tracker *progress.Tracker,
	events *analytics.Service,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, tracker: tracker, events: events, sched: sched, logger: logger}
}

// Metrics returns service health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var users, started, completed, badges int64
	h.db.Model(&model.Account{}).Count(&users)
	h.db.Model(&model.OnboardingProgress{}).Count(&started)
	h.db.Model(&model.OnboardingProgress{}).Where("is_completed = ?", true).Count(&completed)
	h.db.Model(&model.UserBadge{}).Count(&badges)

	c.JSON(http.StatusOK, gin.H{
		"users":             users,
		"onboarding_active": started - completed,
		"onboarding_done":   completed,
		"badges_unlocked":   badges,
		"scheduler_tasks":   h.sched.ListTickers(),
	})
}

// UserProgress returns the full derived snapshot for any user.
// GET /api/admin/progress/:user_id
func (h *AdminHandler) UserProgress(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()
	p, err := h.tracker.GetProgress(ctx, userID)
	if errors.Is(err, progress.ErrProgressNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress for user"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	tpl, err := h.tracker.Template(ctx, p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	view, err := progress.BuildView(p, tpl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Events returns the newest analytics events.
// GET /api/admin/events?limit=100
func (h *AdminHandler) Events(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := h.events.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// DisableAccount disables or re-enables a user account.
// POST /api/admin/accounts/:id/disable
func (h *AdminHandler) DisableAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Disable bool `json:"disable"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Disable {
		status = 0
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
