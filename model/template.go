package model

import "time"

// StepCategory groups steps by the kind of onboarding work they represent.
type StepCategory = string

const (
	CategorySetup       StepCategory = "setup"
	CategoryExploration StepCategory = "exploration"
	CategoryNetworking  StepCategory = "networking"
	CategoryContent     StepCategory = "content"
	CategoryMastery     StepCategory = "mastery"
)

// QuestTemplate is an ordered onboarding quest definition.
// Templates are authored externally and read-only to the engine;
// in-flight progress depends on steps never being removed or reordered.
type QuestTemplate struct {
	ID          string      `gorm:"primaryKey;size:64" json:"id"`
	Name        string      `gorm:"size:128;not null" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	IsActive    bool        `gorm:"default:true;index" json:"is_active"`
	IsDefault   bool        `gorm:"default:false" json:"is_default"`
	Steps       []QuestStep `gorm:"foreignKey:TemplateID" json:"steps"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// QuestStep is one unit of work within a template.
type QuestStep struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	TemplateID  string `gorm:"uniqueIndex:idx_step_order,priority:1;size:64;not null" json:"template_id"`
	Title       string `gorm:"size:128;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	SortOrder   int    `gorm:"uniqueIndex:idx_step_order,priority:2;not null" json:"sort_order"`
	Points      int    `gorm:"default:0" json:"points"`
	IsRequired  bool   `gorm:"default:false" json:"is_required"`
	Category    string `gorm:"size:32" json:"category"`
	BadgeID     string `gorm:"size:64" json:"badge_id,omitempty"`
	TargetValue int    `gorm:"default:1" json:"target_value"`
}

// StepByID returns the step with the given id, or nil.
func (t *QuestTemplate) StepByID(stepID string) *QuestStep {
	for i := range t.Steps {
		if t.Steps[i].ID == stepID {
			return &t.Steps[i]
		}
	}
	return nil
}
