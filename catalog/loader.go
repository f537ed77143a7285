package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/onboardly/questengine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidTemplate is wrapped by all template validation failures.
var ErrInvalidTemplate = errors.New("catalog: invalid template")

// TemplateDef is the authoring-side shape of a quest template, as
// found in templates.json.
type TemplateDef struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	IsDefault   bool      `json:"is_default"`
	Steps       []StepDef `json:"steps"`
}

// StepDef is one authored step.
type StepDef struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	Points      int    `json:"points"`
	IsRequired  bool   `json:"is_required"`
	Category    string `json:"category"`
	BadgeID     string `json:"badge_id,omitempty"`
	TargetValue int    `json:"target_value,omitempty"`
}

type templatesFile struct {
	Templates []TemplateDef `json:"templates"`
}

type badgesFile struct {
	Badges []model.Badge `json:"badges"`
}

// Loader reads the externally authored template and badge catalog
// from a data directory (templates.json, badges.json).
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader creates a Loader for the given catalog directory.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// LoadBadges reads badges.json. A missing file yields an empty catalog.
func (l *Loader) LoadBadges() ([]model.Badge, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, "badges.json"))
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("badges.json not found, badge catalog is empty", zap.String("dir", l.dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var file badgesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse badges.json: %w", err)
	}
	return file.Badges, nil
}

// LoadTemplates reads and validates templates.json.
func (l *Loader) LoadTemplates() ([]TemplateDef, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, "templates.json"))
	if err != nil {
		return nil, err
	}
	var file templatesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse templates.json: %w", err)
	}
	for _, def := range file.Templates {
		if err := ValidateTemplate(def); err != nil {
			return nil, err
		}
	}
	return file.Templates, nil
}

// ValidateTemplate enforces the template invariants: a non-empty id,
// unique step ids, step orders forming a contiguous sequence from 1,
// non-negative points, and at least one required step.
func ValidateTemplate(def TemplateDef) error {
	if def.ID == "" {
		return fmt.Errorf("%w: missing template id", ErrInvalidTemplate)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: template %q has no steps", ErrInvalidTemplate, def.ID)
	}

	seenIDs := make(map[string]bool, len(def.Steps))
	seenOrders := make(map[int]bool, len(def.Steps))
	hasRequired := false
	for _, step := range def.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w: template %q has a step without id", ErrInvalidTemplate, def.ID)
		}
		if seenIDs[step.ID] {
			return fmt.Errorf("%w: template %q duplicates step id %q", ErrInvalidTemplate, def.ID, step.ID)
		}
		seenIDs[step.ID] = true
		if seenOrders[step.Order] {
			return fmt.Errorf("%w: template %q duplicates order %d", ErrInvalidTemplate, def.ID, step.Order)
		}
		seenOrders[step.Order] = true
		if step.Points < 0 {
			return fmt.Errorf("%w: template %q step %q has negative points", ErrInvalidTemplate, def.ID, step.ID)
		}
		if step.IsRequired {
			hasRequired = true
		}
	}
	for order := 1; order <= len(def.Steps); order++ {
		if !seenOrders[order] {
			return fmt.Errorf("%w: template %q step orders are not contiguous from 1", ErrInvalidTemplate, def.ID)
		}
	}
	if !hasRequired {
		return fmt.Errorf("%w: template %q has no required step", ErrInvalidTemplate, def.ID)
	}
	return nil
}

// CheckBadgeRefs verifies every step badge id resolves in the badge
// catalog, so a typo in templates.json fails at startup instead of at
// unlock time.
func CheckBadgeRefs(defs []TemplateDef, badges []model.Badge) error {
	known := make(map[string]bool, len(badges))
	for _, b := range badges {
		known[b.ID] = true
	}
	for _, def := range defs {
		for _, step := range def.Steps {
			if step.BadgeID != "" && !known[step.BadgeID] {
				return fmt.Errorf("%w: template %q step %q references unknown badge %q",
					ErrInvalidTemplate, def.ID, step.ID, step.BadgeID)
			}
		}
	}
	return nil
}

// Seed writes the authored templates into the database. Templates in
// use keep their existing steps: steps are only appended, never
// removed or reordered, so in-flight progress stays consistent.
func (l *Loader) Seed(ctx context.Context, db *gorm.DB, defs []TemplateDef) error {
	for _, def := range defs {
		if err := l.seedOne(ctx, db, def); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) seedOne(ctx context.Context, db *gorm.DB, def TemplateDef) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.QuestTemplate
		err := tx.Where("id = ?", def.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tpl := &model.QuestTemplate{
				ID:          def.ID,
				Name:        def.Name,
				Description: def.Description,
				IsActive:    def.IsActive,
				IsDefault:   def.IsDefault,
			}
			for _, step := range def.Steps {
				tpl.Steps = append(tpl.Steps, stepModel(def.ID, step))
			}
			l.logger.Info("template seeded", zap.String("template_id", def.ID), zap.Int("steps", len(tpl.Steps)))
			return tx.Create(tpl).Error
		}
		if err != nil {
			return err
		}

		// Existing template: refresh metadata, append unseen steps only.
		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"name":        def.Name,
			"description": def.Description,
			"is_active":   def.IsActive,
			"is_default":  def.IsDefault,
		}).Error; err != nil {
			return err
		}
		var known []model.QuestStep
		if err := tx.Where("template_id = ?", def.ID).Find(&known).Error; err != nil {
			return err
		}
		knownIDs := make(map[string]bool, len(known))
		maxOrder := 0
		for _, step := range known {
			knownIDs[step.ID] = true
			if step.SortOrder > maxOrder {
				maxOrder = step.SortOrder
			}
		}
		for _, step := range def.Steps {
			if knownIDs[step.ID] {
				continue
			}
			if step.Order <= maxOrder {
				return fmt.Errorf("%w: template %q step %q would reorder existing steps",
					ErrInvalidTemplate, def.ID, step.ID)
			}
			if err := tx.Create(stepModelPtr(def.ID, step)).Error; err != nil {
				return err
			}
			l.logger.Info("template step appended",
				zap.String("template_id", def.ID), zap.String("step_id", step.ID))
		}
		return nil
	})
}

func stepModel(templateID string, def StepDef) model.QuestStep {
	target := def.TargetValue
	if target <= 0 {
		target = 1
	}
	return model.QuestStep{
		ID:          def.ID,
		TemplateID:  templateID,
		Title:       def.Title,
		Description: def.Description,
		SortOrder:   def.Order,
		Points:      def.Points,
		IsRequired:  def.IsRequired,
		Category:    def.Category,
		BadgeID:     def.BadgeID,
		TargetValue: target,
	}
}

func stepModelPtr(templateID string, def StepDef) *model.QuestStep {
	step := stepModel(templateID, def)
	return &step
}
