package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/onboardly/questengine/catalog"
	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

const templatesJSON = `{
  "templates": [
    {
      "id": "welcome",
      "name": "Welcome Tour",
      "is_active": true,
      "is_default": true,
      "steps": [
        {"id": "create_profile", "title": "Create your profile", "order": 1, "points": 10, "is_required": true, "category": "setup", "badge_id": "first_steps"},
        {"id": "explore", "title": "Explore", "order": 2, "points": 5, "category": "exploration"}
      ]
    }
  ]
}`

const badgesJSON = `{
  "badges": [
    {"id": "first_steps", "title": "First Steps", "rarity": "common"},
    {"id": "connector", "title": "Connector", "rarity": "rare"}
  ]
}`

func writeCatalog(t *testing.T, templates, badges string) string {
	t.Helper()
	dir := t.TempDir()
	if templates != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "templates.json"), []byte(templates), 0o644))
	}
	if badges != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "badges.json"), []byte(badges), 0o644))
	}
	return dir
}

func TestLoadBadges(t *testing.T) {
	dir := writeCatalog(t, "", badgesJSON)
	l := catalog.NewLoader(dir, nop())

	badges, err := l.LoadBadges()
	require.NoError(t, err)
	require.Len(t, badges, 2)
	assert.Equal(t, "first_steps", badges[0].ID)
	assert.Equal(t, model.RarityRare, badges[1].Rarity)
}

func TestLoadBadges_MissingFileIsEmpty(t *testing.T) {
	l := catalog.NewLoader(t.TempDir(), nop())
	badges, err := l.LoadBadges()
	require.NoError(t, err)
	assert.Empty(t, badges)
}

func TestLoadTemplates(t *testing.T) {
	dir := writeCatalog(t, templatesJSON, "")
	l := catalog.NewLoader(dir, nop())

	defs, err := l.LoadTemplates()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "welcome", defs[0].ID)
	assert.Len(t, defs[0].Steps, 2)
}

func TestValidateTemplate(t *testing.T) {
	valid := catalog.TemplateDef{
		ID: "t",
		Steps: []catalog.StepDef{
			{ID: "a", Order: 1, IsRequired: true},
			{ID: "b", Order: 2},
		},
	}
	require.NoError(t, catalog.ValidateTemplate(valid))

	cases := map[string]catalog.TemplateDef{
		"missing id": {Steps: []catalog.StepDef{{ID: "a", Order: 1, IsRequired: true}}},
		"no steps":   {ID: "t"},
		"duplicate step id": {ID: "t", Steps: []catalog.StepDef{
			{ID: "a", Order: 1, IsRequired: true}, {ID: "a", Order: 2},
		}},
		"duplicate order": {ID: "t", Steps: []catalog.StepDef{
			{ID: "a", Order: 1, IsRequired: true}, {ID: "b", Order: 1},
		}},
		"gap in orders": {ID: "t", Steps: []catalog.StepDef{
			{ID: "a", Order: 1, IsRequired: true}, {ID: "b", Order: 3},
		}},
		"orders not from 1": {ID: "t", Steps: []catalog.StepDef{
			{ID: "a", Order: 2, IsRequired: true}, {ID: "b", Order: 3},
		}},
		"negative points": {ID: "t", Steps: []catalog.StepDef{
			{ID: "a", Order: 1, IsRequired: true, Points: -5},
		}},
		"no required step": {ID: "t", Steps: []catalog.StepDef{
			{ID: "a", Order: 1}, {ID: "b", Order: 2},
		}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, catalog.ValidateTemplate(def), catalog.ErrInvalidTemplate)
		})
	}
}

func TestCheckBadgeRefs(t *testing.T) {
	defs := []catalog.TemplateDef{{
		ID: "t",
		Steps: []catalog.StepDef{
			{ID: "a", Order: 1, IsRequired: true, BadgeID: "first_steps"},
		},
	}}
	badges := []model.Badge{{ID: "first_steps"}}

	require.NoError(t, catalog.CheckBadgeRefs(defs, badges))

	defs[0].Steps[0].BadgeID = "typo"
	assert.ErrorIs(t, catalog.CheckBadgeRefs(defs, badges), catalog.ErrInvalidTemplate)
}

func TestSeed_CreatesTemplate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir := writeCatalog(t, templatesJSON, badgesJSON)
	l := catalog.NewLoader(dir, nop())

	defs, err := l.LoadTemplates()
	require.NoError(t, err)
	require.NoError(t, l.Seed(context.Background(), db, defs))

	var tpl model.QuestTemplate
	require.NoError(t, db.Preload("Steps").First(&tpl, "id = ?", "welcome").Error)
	assert.True(t, tpl.IsDefault)
	require.Len(t, tpl.Steps, 2)

	// Unset target values default to 1.
	for _, step := range tpl.Steps {
		assert.Equal(t, 1, step.TargetValue)
	}
}

func TestSeed_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir := writeCatalog(t, templatesJSON, "")
	l := catalog.NewLoader(dir, nop())

	defs, err := l.LoadTemplates()
	require.NoError(t, err)
	require.NoError(t, l.Seed(context.Background(), db, defs))
	require.NoError(t, l.Seed(context.Background(), db, defs))

	var count int64
	db.Model(&model.QuestStep{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestSeed_AppendsNewSteps(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir := writeCatalog(t, templatesJSON, "")
	l := catalog.NewLoader(dir, nop())

	defs, err := l.LoadTemplates()
	require.NoError(t, err)
	require.NoError(t, l.Seed(context.Background(), db, defs))

	// A new authoring pass adds a third step at the end.
	defs[0].Steps = append(defs[0].Steps, catalog.StepDef{
		ID: "invite", Title: "Invite a friend", Order: 3, Points: 20,
	})
	require.NoError(t, l.Seed(context.Background(), db, defs))

	var tpl model.QuestTemplate
	require.NoError(t, db.Preload("Steps").First(&tpl, "id = ?", "welcome").Error)
	assert.Len(t, tpl.Steps, 3)
}

func TestSeed_RejectsReorder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir := writeCatalog(t, templatesJSON, "")
	l := catalog.NewLoader(dir, nop())

	defs, err := l.LoadTemplates()
	require.NoError(t, err)
	require.NoError(t, l.Seed(context.Background(), db, defs))

	// Inserting a new step before existing ones would reshuffle progress.
	defs[0].Steps = []catalog.StepDef{
		{ID: "sneaky", Title: "Sneaky", Order: 1, IsRequired: true},
		{ID: "create_profile", Title: "Create your profile", Order: 2, IsRequired: true},
		{ID: "explore", Title: "Explore", Order: 3},
	}
	err = l.Seed(context.Background(), db, defs)
	assert.ErrorIs(t, err, catalog.ErrInvalidTemplate)
}
