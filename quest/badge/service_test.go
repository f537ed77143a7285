package badge_test

import (
	"context"
	"testing"

	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/quest/badge"
	"github.com/onboardly/questengine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

var catalogBadges = []model.Badge{
	{ID: "first_steps", Title: "First Steps", Rarity: model.RarityCommon},
	{ID: "connector", Title: "Connector", Rarity: model.RarityRare},
	{ID: "completionist", Title: "Completionist", Rarity: model.RarityLegendary},
}

func newService(t *testing.T) *badge.Service {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return badge.NewService(db, badge.NewCatalog(catalogBadges), nop())
}

func TestUnlock(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	newly, err := svc.Unlock(ctx, 1, "first_steps")
	require.NoError(t, err)
	assert.True(t, newly)

	has, err := svc.HasBadge(ctx, 1, "first_steps")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestUnlock_Idempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	newly, err := svc.Unlock(ctx, 1, "connector")
	require.NoError(t, err)
	assert.True(t, newly)

	// Second unlock is absorbed, not an error.
	newly, err = svc.Unlock(ctx, 1, "connector")
	require.NoError(t, err)
	assert.False(t, newly)

	earned, err := svc.ListBadges(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, earned, 1)
}

func TestUnlock_UnknownBadge(t *testing.T) {
	svc := newService(t)

	_, err := svc.Unlock(context.Background(), 1, "nonexistent")
	assert.ErrorIs(t, err, badge.ErrUnknownBadge)
}

func TestUnlock_PerUser(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Unlock(ctx, 1, "first_steps")
	require.NoError(t, err)

	// Another user unlocking the same badge is independent.
	newly, err := svc.Unlock(ctx, 2, "first_steps")
	require.NoError(t, err)
	assert.True(t, newly)

	has, err := svc.HasBadge(ctx, 3, "first_steps")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestListBadges_UnlockOrder(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, id := range []string{"connector", "first_steps", "completionist"} {
		_, err := svc.Unlock(ctx, 1, id)
		require.NoError(t, err)
	}

	earned, err := svc.ListBadges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, earned, 3)
	assert.Equal(t, "connector", earned[0].ID)
	assert.Equal(t, "first_steps", earned[1].ID)
	assert.Equal(t, "completionist", earned[2].ID)
	assert.Equal(t, "Connector", earned[0].Title)
}

func TestCatalog(t *testing.T) {
	c := badge.NewCatalog(catalogBadges)
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Has("connector"))
	assert.False(t, c.Has("missing"))

	b, ok := c.Get("completionist")
	require.True(t, ok)
	assert.Equal(t, model.RarityLegendary, b.Rarity)

	// All preserves catalog order.
	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "first_steps", all[0].ID)
}
