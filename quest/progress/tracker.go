package progress

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/onboardly/questengine/analytics"
	"github.com/onboardly/questengine/cache"
	"github.com/onboardly/questengine/hook"
	"github.com/onboardly/questengine/middleware"
	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/quest/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LeaderboardKey is the sorted set holding total points per user.
const LeaderboardKey = "leaderboard:points"

// TemplateStore resolves quest templates. Initialization uses the
// active-only path; transitions and views resolve by id alone, so a
// deactivated template keeps serving the users already running it.
type TemplateStore interface {
	GetActiveTemplate(ctx context.Context, templateID string) (*model.QuestTemplate, error)
	GetTemplate(ctx context.Context, templateID string) (*model.QuestTemplate, error)
}

// BadgeUnlocker awards badges. Unlock failures never fail a transition.
type BadgeUnlocker interface {
	Unlock(ctx context.Context, userID int64, badgeID string) (bool, error)
}

// Recorder is the fire-and-forget analytics sink.
type Recorder interface {
	Record(entry analytics.Entry)
}

// Tracker owns the per-user onboarding state machine. All mutations
// are scoped to one user's record; a version-guarded UPDATE makes each
// transition an atomic read-modify-write, so concurrent transitions on
// the same record retry against the fresh row instead of losing updates.
type Tracker struct {
	db        *gorm.DB
	templates TemplateStore
	badges    BadgeUnlocker
	notifier  *notify.Notifier
	hooks     *hook.HookCenter
	events    Recorder
	cache     cache.Cache
	retries   int
	logger    *zap.Logger
}

// Options carries the tracker's collaborators.
type Options struct {
	Templates TemplateStore
	Badges    BadgeUnlocker
	Notifier  *notify.Notifier
	Hooks     *hook.HookCenter
	Events    Recorder
	Cache     cache.Cache
	Retries   int
}

// NewTracker creates a progress Tracker.
func NewTracker(db *gorm.DB, opts Options, logger *zap.Logger) *Tracker {
	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}
	return &Tracker{
		db:        db,
		templates: opts.Templates,
		badges:    opts.Badges,
		notifier:  opts.Notifier,
		hooks:     opts.Hooks,
		events:    opts.Events,
		cache:     opts.Cache,
		retries:   retries,
		logger:    logger,
	}
}

// Initialize creates progress for the user from the given template, or
// returns the existing record unchanged. Initialization never resets
// progress.
func (t *Tracker) Initialize(ctx context.Context, userID int64, templateID string) (*model.OnboardingProgress, error) {
	var existing model.OnboardingProgress
	err := t.db.WithContext(ctx).First(&existing, "user_id = ?", userID).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tpl, err := t.templates.GetActiveTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	states := make(map[string]model.StepState, len(tpl.Steps))
	for _, step := range tpl.Steps {
		states[step.ID] = model.StepState{Status: model.StepPending}
	}

	p := &model.OnboardingProgress{
		UserID:        userID,
		TemplateID:    tpl.ID,
		StartedAt:     time.Now(),
		StepStates:    encodeStates(states),
		CurrentStepID: firstPending(tpl, states),
		BadgesEarned:  encodeBadges(nil),
	}
	if err := t.db.WithContext(ctx).Create(p).Error; err != nil {
		// Concurrent initialize for the same user: return the winner's record.
		if isUniqueViolation(err) {
			var winner model.OnboardingProgress
			if err2 := t.db.WithContext(ctx).First(&winner, "user_id = ?", userID).Error; err2 == nil {
				return &winner, nil
			}
		}
		return nil, err
	}

	t.record(ctx, userID, analytics.EventOnboardingStarted, map[string]interface{}{
		"template_id": tpl.ID,
		"step_count":  len(tpl.Steps),
	})
	t.trigger(ctx, hook.OnOnboardingStarted, p)
	t.notifier.Publish(ctx, p)
	return p, nil
}

// CompleteStep marks the step completed, awards its points and badge,
// and recomputes the aggregates. Completing an already-completed step
// is a no-op returning the unchanged record.
func (t *Tracker) CompleteStep(ctx context.Context, userID int64, stepID string) (*model.OnboardingProgress, error) {
	return t.transition(ctx, userID, stepID, false)
}

// SkipStep marks the step skipped. Skipped steps earn no points and no
// badge; required steps cannot be skipped.
func (t *Tracker) SkipStep(ctx context.Context, userID int64, stepID string) (*model.OnboardingProgress, error) {
	return t.transition(ctx, userID, stepID, true)
}

// GetProgress returns the user's progress record.
func (t *Tracker) GetProgress(ctx context.Context, userID int64) (*model.OnboardingProgress, error) {
	var p model.OnboardingProgress
	err := t.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Template resolves the template backing the given progress record,
// active or not.
func (t *Tracker) Template(ctx context.Context, p *model.OnboardingProgress) (*model.QuestTemplate, error) {
	return t.templates.GetTemplate(ctx, p.TemplateID)
}

// NextStep returns the lowest-order step still pending, or nil.
func NextStep(p *model.OnboardingProgress, tpl *model.QuestTemplate) *model.QuestStep {
	states, err := DecodeStates(p.StepStates)
	if err != nil {
		return nil
	}
	for i := range tpl.Steps {
		if states[tpl.Steps[i].ID].Status == model.StepPending {
			return &tpl.Steps[i]
		}
	}
	return nil
}

// Subscribe delivers the current progress immediately, then a snapshot
// after every successful transition, until cancel is called.
func (t *Tracker) Subscribe(ctx context.Context, userID int64) (<-chan *model.OnboardingProgress, func(), error) {
	updates, unsub, err := t.notifier.Subscribe(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	current, err := t.GetProgress(ctx, userID)
	if err != nil && !errors.Is(err, ErrProgressNotFound) {
		unsub()
		return nil, nil, err
	}

	out := make(chan *model.OnboardingProgress, 16)
	go func() {
		defer close(out)
		if current != nil {
			out <- current
		}
		for p := range updates {
			out <- p
		}
	}()
	return out, unsub, nil
}

// transition applies one step completion or skip with a bounded
// compare-and-swap retry loop.
func (t *Tracker) transition(ctx context.Context, userID int64, stepID string, skip bool) (*model.OnboardingProgress, error) {
	for attempt := 0; attempt < t.retries; attempt++ {
		p, err := t.GetProgress(ctx, userID)
		if err != nil {
			return nil, err
		}
		tpl, err := t.templates.GetTemplate(ctx, p.TemplateID)
		if err != nil {
			return nil, err
		}
		step := tpl.StepByID(stepID)
		if step == nil {
			return nil, ErrStepNotFound
		}

		states, err := DecodeStates(p.StepStates)
		if err != nil {
			return nil, err
		}

		// Terminal lock: no transitions at all once the quest completed.
		if p.IsCompleted {
			return nil, ErrAlreadyTerminal
		}

		state := states[stepID]
		if skip {
			// Skips of steps already terminal are no-ops; flipping a
			// completed step to skipped would un-earn its points.
			if state.Terminal() {
				return p, nil
			}
			if step.IsRequired {
				return nil, ErrCannotSkipRequiredStep
			}
		} else if state.Status == model.StepCompleted {
			return p, nil
		}

		now := time.Now()
		badges, err := decodeBadgesJSON(p.BadgesEarned)
		if err != nil {
			return nil, err
		}

		points := p.TotalPointsEarned
		var unlockedBadge string
		if skip {
			states[stepID] = model.StepState{Status: model.StepSkipped, CompletedAt: &now}
		} else {
			target := step.TargetValue
			if target <= 0 {
				target = 1
			}
			states[stepID] = model.StepState{Status: model.StepCompleted, CurrentValue: target, CompletedAt: &now}
			points += step.Points
			if step.BadgeID != "" {
				if newly, badgeErr := t.badges.Unlock(ctx, userID, step.BadgeID); badgeErr != nil {
					// An unlockable reward is a non-critical enhancement:
					// the step still completes and points are still awarded.
					t.logger.Warn("badge unlock failed",
						zap.Int64("user_id", userID),
						zap.String("step_id", stepID),
						zap.String("badge_id", step.BadgeID),
						zap.Error(badgeErr))
					t.record(ctx, userID, analytics.EventBadgeUnlockFailed, map[string]interface{}{
						"step_id":  stepID,
						"badge_id": step.BadgeID,
						"reason":   badgeErr.Error(),
					})
				} else {
					if !containsString(badges, step.BadgeID) {
						badges = append(badges, step.BadgeID)
					}
					if newly {
						unlockedBadge = step.BadgeID
					}
				}
			}
		}

		terminal := 0
		for _, st := range states {
			if st.Terminal() {
				terminal++
			}
		}
		percentage := 0
		if len(tpl.Steps) > 0 {
			percentage = int(math.Round(100 * float64(terminal) / float64(len(tpl.Steps))))
		}
		currentStep := firstPending(tpl, states)
		completed := terminal == len(tpl.Steps)

		updates := map[string]interface{}{
			"step_states":           encodeStates(states),
			"current_step_id":       currentStep,
			"total_points_earned":   points,
			"completion_percentage": percentage,
			"badges_earned":         encodeBadges(badges),
			"is_completed":          completed,
			"version":               p.Version + 1,
		}
		if completed {
			updates["completed_at"] = now
		}

		res := t.db.WithContext(ctx).Model(&model.OnboardingProgress{}).
			Where("user_id = ? AND version = ?", userID, p.Version).
			Updates(updates)
		if res.Error != nil {
			return nil, ErrPersistenceUnavailable
		}
		if res.RowsAffected == 0 {
			// Lost a race against a concurrent transition; retry on the fresh row.
			continue
		}

		updated := *p
		updated.StepStates = encodeStates(states)
		updated.CurrentStepID = currentStep
		updated.TotalPointsEarned = points
		updated.CompletionPercentage = percentage
		updated.BadgesEarned = encodeBadges(badges)
		updated.IsCompleted = completed
		updated.Version = p.Version + 1
		if completed {
			updated.CompletedAt = &now
		}

		t.afterTransition(ctx, &updated, step, skip, unlockedBadge, len(badges))
		return &updated, nil
	}
	return nil, ErrPersistenceUnavailable
}

// afterTransition emits the best-effort side effects of a successful
// write: notification, analytics, hooks, leaderboard.
func (t *Tracker) afterTransition(ctx context.Context, p *model.OnboardingProgress, step *model.QuestStep, skip bool, unlockedBadge string, badgeCount int) {
	t.notifier.Publish(ctx, p)

	if skip {
		t.record(ctx, p.UserID, analytics.EventStepSkipped, map[string]interface{}{
			"step_id": step.ID,
		})
		t.trigger(ctx, hook.OnStepSkipped, p)
	} else {
		payload := map[string]interface{}{
			"step_id": step.ID,
			"points":  step.Points,
		}
		if step.BadgeID != "" {
			payload["badge_id"] = step.BadgeID
		}
		t.record(ctx, p.UserID, analytics.EventStepCompleted, payload)
		t.trigger(ctx, hook.OnStepCompleted, p)
		if unlockedBadge != "" {
			t.trigger(ctx, hook.OnBadgeUnlocked, unlockedBadge)
		}
		if t.cache != nil {
			_ = t.cache.ZAdd(ctx, LeaderboardKey, float64(p.TotalPointsEarned), strconv.FormatInt(p.UserID, 10))
		}
	}

	if p.IsCompleted {
		t.record(ctx, p.UserID, analytics.EventQuestCompleted, map[string]interface{}{
			"total_points": p.TotalPointsEarned,
			"badge_count":  badgeCount,
			"duration_ms":  time.Since(p.StartedAt).Milliseconds(),
		})
		t.trigger(ctx, hook.OnQuestCompleted, p)
		t.logger.Info("quest completed",
			zap.Int64("user_id", p.UserID),
			zap.String("template_id", p.TemplateID),
			zap.Int("total_points", p.TotalPointsEarned))
	}
}

func (t *Tracker) record(ctx context.Context, userID int64, eventType string, payload interface{}) {
	if t.events == nil {
		return
	}
	t.events.Record(analytics.Entry{
		TraceID:   middleware.TraceFromContext(ctx),
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
	})
}

func (t *Tracker) trigger(ctx context.Context, event string, data interface{}) {
	if t.hooks == nil {
		return
	}
	if _, err := t.hooks.Trigger(ctx, event, data); err != nil && !errors.Is(err, hook.ErrInterrupt) {
		t.logger.Warn("hook trigger failed", zap.String("event", event), zap.Error(err))
	}
}

// firstPending returns the id of the lowest-order pending step, or "".
func firstPending(tpl *model.QuestTemplate, states map[string]model.StepState) string {
	for _, step := range tpl.Steps {
		if states[step.ID].Status == model.StepPending {
			return step.ID
		}
	}
	return ""
}

// DecodeStates parses the persisted step-state map.
func DecodeStates(raw []byte) (map[string]model.StepState, error) {
	states := make(map[string]model.StepState)
	if len(raw) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, err
	}
	return states, nil
}

// DecodeBadges parses the persisted badge id list.
func DecodeBadges(raw []byte) ([]string, error) {
	return decodeBadgesJSON(raw)
}

func decodeBadgesJSON(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var badges []string
	if err := json.Unmarshal(raw, &badges); err != nil {
		return nil, err
	}
	return badges, nil
}

func encodeStates(states map[string]model.StepState) []byte {
	raw, _ := json.Marshal(states)
	return raw
}

func encodeBadges(badges []string) []byte {
	if badges == nil {
		badges = []string{}
	}
	raw, _ := json.Marshal(badges)
	return raw
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
