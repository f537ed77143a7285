package model

import "time"

// BadgeRarity grades how hard a badge is to earn.
type BadgeRarity = string

const (
	RarityCommon    BadgeRarity = "common"
	RarityRare      BadgeRarity = "rare"
	RarityEpic      BadgeRarity = "epic"
	RarityLegendary BadgeRarity = "legendary"
)

// Badge is an immutable catalog entry. The catalog is loaded once at
// process start and injected; badges are never persisted per se, only
// their unlocks are.
type Badge struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Rarity      BadgeRarity `json:"rarity"`
}

// UserBadge records one badge unlock for one user. Append-only; the
// unique index makes duplicate unlocks impossible at the storage layer.
type UserBadge struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex:idx_user_badge,priority:1;not null" json:"user_id"`
	BadgeID    string    `gorm:"uniqueIndex:idx_user_badge,priority:2;size:64;not null" json:"badge_id"`
	UnlockedAt time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
}
