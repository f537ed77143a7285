package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/onboardly/questengine/middleware"
	"github.com/onboardly/questengine/quest/badge"
	"go.uber.org/zap"
)

// BadgeHandler exposes the badge catalog and per-user unlocks.
type BadgeHandler struct {
	svc    *badge.Service
	logger *zap.Logger
}

// NewBadgeHandler creates a BadgeHandler.
func NewBadgeHandler(svc *badge.Service, logger *zap.Logger) *BadgeHandler {
	return &BadgeHandler{svc: svc, logger: logger}
}

// Catalog handles GET /api/badges.
// Returns every badge that can be earned, in catalog order.
func (h *BadgeHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"badges": h.svc.Catalog().All()})
}

// Earned handles GET /api/badges/earned.
// Returns the caller's unlocked badges in unlock order.
func (h *BadgeHandler) Earned(c *gin.Context) {
	userID := mw.GetUserID(c)
	earned, err := h.svc.ListBadges(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list earned badges failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": earned, "count": len(earned)})
}
