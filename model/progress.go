package model

import (
	"time"

	"gorm.io/datatypes"
)

// StepStatus is the per-step progress state.
type StepStatus = string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
)

// StepState tracks one step inside an OnboardingProgress record.
type StepState struct {
	Status       StepStatus `json:"status"`
	CurrentValue int        `json:"current_value"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the step can no longer transition.
func (s StepState) Terminal() bool {
	return s.Status == StepCompleted || s.Status == StepSkipped
}

// OnboardingProgress is the per-user mutable aggregate the engine owns.
// StepStates is a map[stepID]StepState; BadgesEarned is a []string in
// unlock order. Version backs the compare-and-swap write path: every
// transition is an UPDATE guarded by the version read, so concurrent
// transitions on the same user never lose updates.
type OnboardingProgress struct {
	UserID               int64          `gorm:"primaryKey" json:"user_id"`
	TemplateID           string         `gorm:"size:64;not null" json:"template_id"`
	StartedAt            time.Time      `gorm:"autoCreateTime" json:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	StepStates           datatypes.JSON `json:"step_states"`
	CurrentStepID        string         `gorm:"size:64" json:"current_step_id,omitempty"`
	TotalPointsEarned    int            `gorm:"default:0" json:"total_points_earned"`
	CompletionPercentage int            `gorm:"default:0" json:"completion_percentage"`
	BadgesEarned         datatypes.JSON `json:"badges_earned"`
	IsCompleted          bool           `gorm:"default:false;index" json:"is_completed"`
	Version              int64          `gorm:"default:0" json:"-"`
}
