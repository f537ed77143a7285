// Package scheduler runs the engine's background maintenance: periodic
// jobs like the leaderboard rebuild and the template cache warm-up,
// plus one-shot delayed work.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of background work. Long-running jobs carry their own
// timeout; the scheduler only shields itself from panics.
type Job func()

// Scheduler owns named jobs. Registering a name twice replaces the
// earlier job under that name.
type Scheduler struct {
	mu       sync.Mutex
	periodic map[string]*periodicJob
	oneShots map[string]*time.Timer
	quit     chan struct{}
	logger   *zap.Logger
}

type periodicJob struct {
	ticker *time.Ticker
	done   chan struct{}
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		periodic: make(map[string]*periodicJob),
		oneShots: make(map[string]*time.Timer),
		quit:     make(chan struct{}),
		logger:   logger,
	}
}

// AddTicker schedules fn to run every interval under the given name.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.periodic[name]; ok {
		close(old.done)
		delete(s.periodic, name)
	}

	job := &periodicJob{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	s.periodic[name] = job
	go s.loop(name, job, fn)

	s.logger.Info("background job scheduled",
		zap.String("job", name), zap.Duration("interval", interval))
}

func (s *Scheduler) loop(name string, job *periodicJob, fn Job) {
	defer job.ticker.Stop()
	for {
		select {
		case <-job.ticker.C:
			s.invoke(name, fn)
		case <-job.done:
			return
		case <-s.quit:
			return
		}
	}
}

// invoke shields the scheduler from a panicking job.
func (s *Scheduler) invoke(name string, fn Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background job panicked",
				zap.String("job", name), zap.Any("recover", r))
		}
	}()
	fn()
}

// AddDelay runs fn once after the given delay. Scheduling the same
// name again resets the pending delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.oneShots[name]; ok {
		old.Stop()
	}
	s.oneShots[name] = time.AfterFunc(delay, func() {
		s.invoke(name, fn)
		s.mu.Lock()
		delete(s.oneShots, name)
		s.mu.Unlock()
	})
}

// Remove cancels the named job, periodic or one-shot.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.periodic[name]; ok {
		close(job.done)
		delete(s.periodic, name)
	}
	if timer, ok := s.oneShots[name]; ok {
		timer.Stop()
		delete(s.oneShots, name)
	}
}

// Stop halts every periodic job. Safe to call more than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}

// ListTickers returns the names of the registered periodic jobs, for
// the admin surface.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.periodic))
	for name := range s.periodic {
		names = append(names, name)
	}
	return names
}
