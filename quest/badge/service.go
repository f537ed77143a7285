package badge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/onboardly/questengine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnknownBadge is returned when a badge id is not in the catalog.
var ErrUnknownBadge = errors.New("badge: unknown badge id")

// Service records badge unlocks. Unlocks are append-only and
// idempotent: the (user_id, badge_id) unique index is the source of
// truth, so concurrent duplicate unlocks collapse to one row.
type Service struct {
	db      *gorm.DB
	catalog *Catalog
	logger  *zap.Logger
}

// NewService creates a badge Service over the given catalog.
func NewService(db *gorm.DB, catalog *Catalog, logger *zap.Logger) *Service {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	return &Service{db: db, catalog: catalog, logger: logger}
}

// Catalog returns the injected badge catalog.
func (svc *Service) Catalog() *Catalog { return svc.catalog }

// Unlock records the badge for the user. It returns true if this call
// newly unlocked the badge and false if the user already had it.
func (svc *Service) Unlock(ctx context.Context, userID int64, badgeID string) (bool, error) {
	if !svc.catalog.Has(badgeID) {
		return false, ErrUnknownBadge
	}

	record := &model.UserBadge{UserID: userID, BadgeID: badgeID}
	if err := svc.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	svc.logger.Info("badge unlocked",
		zap.Int64("user_id", userID),
		zap.String("badge_id", badgeID))
	return true, nil
}

// HasBadge reports whether the user already unlocked the badge.
func (svc *Service) HasBadge(ctx context.Context, userID int64, badgeID string) (bool, error) {
	var count int64
	err := svc.db.WithContext(ctx).Model(&model.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	return count > 0, err
}

// EarnedBadge pairs a catalog entry with its unlock time.
type EarnedBadge struct {
	model.Badge
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ListBadges returns the user's unlocked badges in unlock order.
// Unlocks whose badge id has left the catalog are skipped.
func (svc *Service) ListBadges(ctx context.Context, userID int64) ([]EarnedBadge, error) {
	var rows []model.UserBadge
	if err := svc.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]EarnedBadge, 0, len(rows))
	for _, row := range rows {
		b, ok := svc.catalog.Get(row.BadgeID)
		if !ok {
			continue
		}
		out = append(out, EarnedBadge{Badge: b, UnlockedAt: row.UnlockedAt})
	}
	return out, nil
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
