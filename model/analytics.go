package model

import (
	"time"

	"gorm.io/datatypes"
)

// AnalyticsEvent records one onboarding lifecycle event. Writes are
// best-effort and batched; nothing in the engine depends on them.
type AnalyticsEvent struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_event_trace;size:36" json:"trace_id"`
	UserID    int64          `gorm:"index:idx_event_user" json:"user_id"`
	EventType string         `gorm:"size:64;not null" json:"event_type"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `gorm:"index:idx_event_created;autoCreateTime:milli" json:"created_at"`
}
