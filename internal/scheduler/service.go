package scheduler

import (
	"context"
	"sync"
	"time"

	"settld/pkg/errors"
	"settld/pkg/logger"
)

// SettleFunc settles a single transaction once its delay has elapsed.
type SettleFunc func(ctx context.Context, transactionID string) error

// Scheduler runs one deferred settlement per transaction id on its own timer.
// Timers live outside any request, so callers never block for the delay.
// Pending settlements are held in memory only and are lost if the process exits.
type Scheduler struct {
	delay  time.Duration
	settle SettleFunc
	logger logger.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	running sync.WaitGroup
}

func NewScheduler(delay time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		delay:  delay,
		logger: log,
		timers: make(map[string]*time.Timer),
	}
}

// Start binds the settlement action. Schedule fails until Start is called.
func (s *Scheduler) Start(settle SettleFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settle = settle
	s.logger.Info("Settlement scheduler started", map[string]interface{}{
		"delay": s.delay.String(),
	})
}

// Delay returns the process-wide settlement delay.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule registers transactionID for settlement after the configured delay
// and returns immediately. Scheduling an id that is already pending is a no-op.
func (s *Scheduler) Schedule(transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.ErrSchedulerStopped
	}
	if s.settle == nil {
		return errors.Wrap(errors.ErrSchedulerStopped, "scheduler not started")
	}
	if _, pending := s.timers[transactionID]; pending {
		s.logger.Warn("Settlement already scheduled", map[string]interface{}{
			"transaction_id": transactionID,
		})
		return nil
	}

	s.timers[transactionID] = time.AfterFunc(s.delay, func() {
		s.fire(transactionID)
	})

	s.logger.Debug("Scheduled settlement", map[string]interface{}{
		"transaction_id": transactionID,
		"delay":          s.delay.String(),
	})
	return nil
}

// Pending returns the number of settlements whose timers have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) fire(transactionID string) {
	s.mu.Lock()
	if _, ok := s.timers[transactionID]; !ok {
		// Dropped by Stop between the timer firing and acquiring the lock.
		s.mu.Unlock()
		return
	}
	delete(s.timers, transactionID)
	settle := s.settle
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()

	if err := settle(context.Background(), transactionID); err != nil {
		s.logger.Error("Settlement failed", map[string]interface{}{
			"transaction_id": transactionID,
			"error":          err.Error(),
		})
	}
}

// Stop cancels every settlement that has not fired and waits for in-flight
// settlements to finish or ctx to expire. Cancelled settlements are not
// persisted anywhere; their rows stay PROCESSING.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	dropped := make([]string, 0, len(s.timers))
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
		dropped = append(dropped, id)
	}
	s.mu.Unlock()

	if len(dropped) > 0 {
		s.logger.Warn("Dropped pending settlements on shutdown", map[string]interface{}{
			"count":           len(dropped),
			"transaction_ids": dropped,
		})
	}

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Settlement scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
