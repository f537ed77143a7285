package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/onboardly/questengine/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lifecycle event types recorded by the engine.
const (
	EventOnboardingStarted = "onboarding_started"
	EventStepCompleted     = "step_completed"
	EventStepSkipped       = "step_skipped"
	EventQuestCompleted    = "quest_completed"
	EventBadgeUnlockFailed = "badge_unlock_failed"
)

// Entry holds one analytics event to be recorded.
type Entry struct {
	TraceID   string
	UserID    int64
	EventType string
	Payload   interface{}
}

// Service records lifecycle events asynchronously in batches. Record
// is fire-and-forget: a full buffer drops the entry with a warning and
// a write failure is logged, never surfaced to the caller.
type Service struct {
	db     *gorm.DB
	ch     chan *model.AnalyticsEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new analytics Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AnalyticsEvent, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Record enqueues an event for async DB write.
func (svc *Service) Record(entry Entry) {
	payloadJSON, _ := json.Marshal(entry.Payload)
	record := &model.AnalyticsEvent{
		TraceID:   entry.TraceID,
		UserID:    entry.UserID,
		EventType: entry.EventType,
		Payload:   datatypes.JSON(payloadJSON),
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("analytics channel full, dropping event",
			zap.String("event_type", entry.EventType))
	}
}

// Recent returns the newest events, for the admin surface.
func (svc *Service) Recent(ctx context.Context, limit int) ([]model.AnalyticsEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []model.AnalyticsEvent
	err := svc.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// Stop flushes remaining events and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.AnalyticsEvent, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("analytics batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-svc.ch:
			batch = append(batch, event)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining events.
			for {
				select {
				case event := <-svc.ch:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}
