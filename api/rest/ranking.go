package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/onboardly/questengine/cache"
	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/quest/progress"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RankingHandler handles the points leaderboard REST endpoints.
type RankingHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{db: db, cache: c, logger: logger}
}

const rankingTop = 100

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank      int    `json:"rank"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Points    int    `json:"points"`
	Completed bool   `json:"completed"`
}

// TopPoints returns the top users sorted by total points earned.
// GET /api/ranking/points?limit=20
func (h *RankingHandler) TopPoints(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	// Try the cached sorted set first.
	ctx := c.Request.Context()
	members, err := h.cache.ZRevRange(ctx, progress.LeaderboardKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]RankEntry, 0, len(members))
		for i, m := range members {
			userID, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			score, _ := h.cache.ZScore(ctx, progress.LeaderboardKey, m)
			entries = append(entries, RankEntry{
				Rank:   i + 1,
				UserID: userID,
				Points: int(score),
			})
		}
		h.enrich(entries)
		c.JSON(http.StatusOK, gin.H{"ranking": entries})
		return
	}

	// Fall back to DB query.
	var rows []model.OnboardingProgress
	h.db.Select("user_id, total_points_earned, is_completed").
		Order("total_points_earned DESC").
		Limit(limit).
		Find(&rows)

	entries := make([]RankEntry, len(rows))
	for i, row := range rows {
		entries[i] = RankEntry{
			Rank:      i + 1,
			UserID:    row.UserID,
			Points:    row.TotalPointsEarned,
			Completed: row.IsCompleted,
		}
		// Refresh cache entry.
		_ = h.cache.ZAdd(ctx, progress.LeaderboardKey,
			float64(row.TotalPointsEarned), strconv.FormatInt(row.UserID, 10))
	}
	h.enrich(entries)
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}

// Refresh rebuilds the leaderboard sorted set from the DB. Called
// periodically by the scheduler; also exposed as POST /api/admin/ranking/refresh.
func (h *RankingHandler) Refresh(c *gin.Context) {
	n, err := h.RebuildLeaderboard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

const rebuildLockKey = "lock:leaderboard_rebuild"

// RebuildLeaderboard refreshes the sorted set from the DB top rows.
// A short-lived lock keeps overlapping rebuilds (scheduler tick plus
// admin refresh, or multiple instances) from hammering the DB.
func (h *RankingHandler) RebuildLeaderboard(ctx context.Context) (int, error) {
	if ok, err := h.cache.SetNX(ctx, rebuildLockKey, "1", 30*time.Second); err == nil && !ok {
		return 0, nil
	}
	defer func() { _ = h.cache.Del(ctx, rebuildLockKey) }()

	var rows []model.OnboardingProgress
	if err := h.db.Select("user_id, total_points_earned").
		Order("total_points_earned DESC").
		Limit(rankingTop).
		Find(&rows).Error; err != nil {
		return 0, err
	}
	for _, row := range rows {
		_ = h.cache.ZAdd(ctx, progress.LeaderboardKey,
			float64(row.TotalPointsEarned), strconv.FormatInt(row.UserID, 10))
	}
	return len(rows), nil
}

func (h *RankingHandler) enrich(entries []RankEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}

	var accounts []model.Account
	h.db.Select("id, username").Where("id IN ?", ids).Find(&accounts)
	nameMap := make(map[int64]string, len(accounts))
	for _, acc := range accounts {
		nameMap[acc.ID] = acc.Username
	}

	var rows []model.OnboardingProgress
	h.db.Select("user_id, is_completed").Where("user_id IN ?", ids).Find(&rows)
	doneMap := make(map[int64]bool, len(rows))
	for _, row := range rows {
		doneMap[row.UserID] = row.IsCompleted
	}

	for i := range entries {
		entries[i].Username = nameMap[entries[i].UserID]
		entries[i].Completed = doneMap[entries[i].UserID]
	}
}
