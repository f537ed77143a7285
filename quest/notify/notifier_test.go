package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/quest/notify"
	"github.com/onboardly/questengine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestChannelIsPerUser(t *testing.T) {
	assert.Equal(t, "onboarding:progress:7", notify.Channel(7))
	assert.NotEqual(t, notify.Channel(1), notify.Channel(2))
}

func TestPublishSubscribe(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	n := notify.New(ps, nop())
	ctx := context.Background()

	updates, unsub, err := n.Subscribe(ctx, 7)
	require.NoError(t, err)
	defer unsub()

	n.Publish(ctx, &model.OnboardingProgress{
		UserID:            7,
		TemplateID:        "welcome",
		TotalPointsEarned: 15,
	})

	select {
	case p := <-updates:
		assert.Equal(t, int64(7), p.UserID)
		assert.Equal(t, 15, p.TotalPointsEarned)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot received")
	}
}

func TestSubscriberIsolation(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	n := notify.New(ps, nop())
	ctx := context.Background()

	otherUpdates, unsub, err := n.Subscribe(ctx, 2)
	require.NoError(t, err)
	defer unsub()

	// A snapshot for user 1 must not reach user 2's channel.
	n.Publish(ctx, &model.OnboardingProgress{UserID: 1})

	select {
	case <-otherUpdates:
		t.Fatal("crossed user channels")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersIsSilent(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	n := notify.New(ps, nop())

	// Must not block or error.
	n.Publish(context.Background(), &model.OnboardingProgress{UserID: 9})
}
