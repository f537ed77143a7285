package model_test

import (
	"testing"
	"time"

	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Account
	acc := &model.Account{Username: "test_user", PasswordHash: "hash", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))

	var found model.Account
	require.NoError(t, db.First(&found, acc.ID).Error)
	assert.Equal(t, "test_user", found.Username)

	// Template with steps
	tpl := &model.QuestTemplate{
		ID:       "welcome",
		Name:     "Welcome Tour",
		IsActive: true,
		Steps: []model.QuestStep{
			{ID: "profile", TemplateID: "welcome", Title: "Fill your profile", SortOrder: 1, Points: 10, IsRequired: true, Category: model.CategorySetup, TargetValue: 1},
			{ID: "browse", TemplateID: "welcome", Title: "Browse the catalog", SortOrder: 2, Points: 5, Category: model.CategoryExploration, TargetValue: 1},
		},
	}
	require.NoError(t, db.Create(tpl).Error)

	var loaded model.QuestTemplate
	require.NoError(t, db.Preload("Steps").First(&loaded, "id = ?", "welcome").Error)
	assert.Len(t, loaded.Steps, 2)

	// Progress
	p := &model.OnboardingProgress{
		UserID:     acc.ID,
		TemplateID: "welcome",
		StartedAt:  time.Now(),
		StepStates: datatypes.JSON(`{}`),
	}
	require.NoError(t, db.Create(p).Error)

	// UserBadge
	ub := &model.UserBadge{UserID: acc.ID, BadgeID: "first_steps"}
	require.NoError(t, db.Create(ub).Error)

	// AnalyticsEvent
	ev := &model.AnalyticsEvent{TraceID: "trace-001", UserID: acc.ID, EventType: "onboarding_started"}
	require.NoError(t, db.Create(ev).Error)
}

func TestStepOrderUniquePerTemplate(t *testing.T) {
	db := testutil.SetupTestDB(t)

	tpl := &model.QuestTemplate{ID: "t1", Name: "T1", IsActive: true}
	require.NoError(t, db.Create(tpl).Error)
	require.NoError(t, db.Create(&model.QuestStep{ID: "a", TemplateID: "t1", SortOrder: 1, IsRequired: true, TargetValue: 1}).Error)

	// Same order within the same template must be rejected.
	err := db.Create(&model.QuestStep{ID: "b", TemplateID: "t1", SortOrder: 1, TargetValue: 1}).Error
	assert.Error(t, err)

	// Same order in a different template is fine.
	require.NoError(t, db.Create(&model.QuestTemplate{ID: "t2", Name: "T2", IsActive: true}).Error)
	assert.NoError(t, db.Create(&model.QuestStep{ID: "c", TemplateID: "t2", SortOrder: 1, TargetValue: 1}).Error)
}

func TestUserBadgeUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(&model.UserBadge{UserID: 1, BadgeID: "explorer"}).Error)
	assert.Error(t, db.Create(&model.UserBadge{UserID: 1, BadgeID: "explorer"}).Error)
	assert.NoError(t, db.Create(&model.UserBadge{UserID: 2, BadgeID: "explorer"}).Error)
}

func TestStepStateTerminal(t *testing.T) {
	assert.False(t, model.StepState{Status: model.StepPending}.Terminal())
	assert.True(t, model.StepState{Status: model.StepCompleted}.Terminal())
	assert.True(t, model.StepState{Status: model.StepSkipped}.Terminal())
}
