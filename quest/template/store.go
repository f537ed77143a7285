package template

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/onboardly/questengine/cache"
	"github.com/onboardly/questengine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrTemplateNotFound is returned when a template id does not resolve
// to an active template.
var ErrTemplateNotFound = errors.New("template: not found or inactive")

const cacheKeyPrefix = "template:"

// Store is the read side of the template catalog. Templates are
// authored externally and immutable from the engine's point of view,
// so reads go through the cache with a TTL.
type Store struct {
	db       *gorm.DB
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewStore creates a template Store.
func NewStore(db *gorm.DB, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *Store {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Store{db: db, cache: c, cacheTTL: cacheTTL, logger: logger}
}

// GetActiveTemplate returns the named active template, or the default
// template when templateID is empty.
func (s *Store) GetActiveTemplate(ctx context.Context, templateID string) (*model.QuestTemplate, error) {
	if templateID == "" {
		return s.getDefault(ctx)
	}

	// The cache holds templates regardless of active state, so the
	// active filter has to apply here too.
	if tpl := s.fromCache(ctx, templateID); tpl != nil && tpl.IsActive {
		return tpl, nil
	}

	var tpl model.QuestTemplate
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Where("id = ? AND is_active = ?", templateID, true).
		First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, &tpl)
	return &tpl, nil
}

// GetTemplate returns the named template whether or not it is still
// active. The active flag only gates new initializations; users already
// running a template keep transitioning after it is deactivated, so
// this is the read path for transitions and progress views.
func (s *Store) GetTemplate(ctx context.Context, templateID string) (*model.QuestTemplate, error) {
	if tpl := s.fromCache(ctx, templateID); tpl != nil {
		return tpl, nil
	}

	var tpl model.QuestTemplate
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Where("id = ?", templateID).
		First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, &tpl)
	return &tpl, nil
}

// ListActiveTemplates returns all active templates, newest first.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]model.QuestTemplate, error) {
	var tpls []model.QuestTemplate
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&tpls).Error
	return tpls, err
}

// WarmCache refreshes the cached JSON for every active template.
// Called periodically by the scheduler.
func (s *Store) WarmCache(ctx context.Context) {
	tpls, err := s.ListActiveTemplates(ctx)
	if err != nil {
		s.logger.Warn("template cache warm failed", zap.Error(err))
		return
	}
	for i := range tpls {
		s.toCache(ctx, &tpls[i])
	}
}

func (s *Store) getDefault(ctx context.Context) (*model.QuestTemplate, error) {
	var tpl model.QuestTemplate
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Where("is_default = ? AND is_active = ?", true, true).
		First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No designated default: fall back to the newest active template.
		err = s.db.WithContext(ctx).
			Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
			Where("is_active = ?", true).
			Order("created_at DESC").
			First(&tpl).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *Store) fromCache(ctx context.Context, templateID string) *model.QuestTemplate {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKeyPrefix+templateID)
	if err != nil || raw == "" {
		return nil
	}
	var tpl model.QuestTemplate
	if err := json.Unmarshal([]byte(raw), &tpl); err != nil {
		return nil
	}
	return &tpl
}

func (s *Store) toCache(ctx context.Context, tpl *model.QuestTemplate) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(tpl)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, cacheKeyPrefix+tpl.ID, string(raw), s.cacheTTL)
}
