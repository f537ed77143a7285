package progress

import (
	"time"

	"github.com/onboardly/questengine/model"
)

// StepView merges a step definition with its per-user state, in
// template order. This is the read-side shape presentation layers
// consume; nothing in it is stored.
type StepView struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	SortOrder    int              `json:"sort_order"`
	Points       int              `json:"points"`
	IsRequired   bool             `json:"is_required"`
	Category     string           `json:"category"`
	BadgeID      string           `json:"badge_id,omitempty"`
	TargetValue  int              `json:"target_value"`
	Status       model.StepStatus `json:"status"`
	CurrentValue int              `json:"current_value"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// View is a full derived snapshot of one user's onboarding.
type View struct {
	Progress *model.OnboardingProgress `json:"progress"`
	Steps    []StepView                `json:"steps"`
	NextStep *StepView                 `json:"next_step,omitempty"`
	Badges   []string                  `json:"badges"`
}

// BuildView derives the presentation snapshot from a progress record
// and its template.
func BuildView(p *model.OnboardingProgress, tpl *model.QuestTemplate) (*View, error) {
	states, err := DecodeStates(p.StepStates)
	if err != nil {
		return nil, err
	}
	badges, err := DecodeBadges(p.BadgesEarned)
	if err != nil {
		return nil, err
	}
	if badges == nil {
		badges = []string{}
	}

	view := &View{Progress: p, Badges: badges, Steps: make([]StepView, 0, len(tpl.Steps))}
	for _, step := range tpl.Steps {
		state := states[step.ID]
		sv := StepView{
			ID:           step.ID,
			Title:        step.Title,
			Description:  step.Description,
			SortOrder:    step.SortOrder,
			Points:       step.Points,
			IsRequired:   step.IsRequired,
			Category:     step.Category,
			BadgeID:      step.BadgeID,
			TargetValue:  step.TargetValue,
			Status:       state.Status,
			CurrentValue: state.CurrentValue,
			CompletedAt:  state.CompletedAt,
		}
		if sv.Status == "" {
			sv.Status = model.StepPending
		}
		view.Steps = append(view.Steps, sv)
		if view.NextStep == nil && sv.Status == model.StepPending {
			next := sv
			view.NextStep = &next
		}
	}
	return view, nil
}
