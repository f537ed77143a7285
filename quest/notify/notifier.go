package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onboardly/questengine/cache"
	"github.com/onboardly/questengine/model"
	"go.uber.org/zap"
)

// Notifier pushes full progress snapshots to per-user pub/sub channels
// after every successful transition. Delivery is at-most-once per state
// version; consumers re-fetch on reconnect.
type Notifier struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// New creates a Notifier over the given PubSub port.
func New(pubsub cache.PubSub, logger *zap.Logger) *Notifier {
	return &Notifier{pubsub: pubsub, logger: logger}
}

// Channel returns the pub/sub channel name carrying one user's updates.
func Channel(userID int64) string {
	return fmt.Sprintf("onboarding:progress:%d", userID)
}

// Publish sends the progress snapshot to the user's channel.
// Failures are logged and swallowed: notification is best-effort and
// must never fail the transition that produced the snapshot.
func (n *Notifier) Publish(ctx context.Context, progress *model.OnboardingProgress) {
	payload, err := json.Marshal(progress)
	if err != nil {
		n.logger.Warn("progress marshal failed", zap.Int64("user_id", progress.UserID), zap.Error(err))
		return
	}
	if err := n.pubsub.Publish(ctx, Channel(progress.UserID), string(payload)); err != nil {
		n.logger.Warn("progress publish failed", zap.Int64("user_id", progress.UserID), zap.Error(err))
	}
}

// Subscribe returns a channel of decoded progress snapshots for the
// user, and a cancel function. Messages that fail to decode are dropped.
func (n *Notifier) Subscribe(ctx context.Context, userID int64) (<-chan *model.OnboardingProgress, func(), error) {
	msgCh, unsub, err := n.pubsub.Subscribe(ctx, Channel(userID))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *model.OnboardingProgress, 16)
	go func() {
		defer close(out)
		for msg := range msgCh {
			var p model.OnboardingProgress
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				continue
			}
			out <- &p
		}
	}()
	return out, unsub, nil
}
