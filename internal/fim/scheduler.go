package fim

import (
	"sync"
	"time"
)

// Scheduler owns the monitoring flag and the fixed-interval re-trigger.
// It arms a one-shot timer after each scan completes; the tick calls the
// trigger function, which is expected to start a scan and call ScheduleNext
// again once the scan terminates. A tick that arrives while a scan is in
// flight is skipped (the terminal event re-arms, so no queueing is needed).
type Scheduler struct {
	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	timer    *time.Timer
	inFlight bool
	trigger  func()
}

// NewScheduler creates a Scheduler calling trigger on each tick.
func NewScheduler(interval time.Duration, enabled bool, trigger func()) *Scheduler {
	return &Scheduler{
		enabled:  enabled,
		interval: interval,
		trigger:  trigger,
	}
}

// Enabled reports the monitoring flag.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled flips the monitoring flag. Disabling stops any armed timer;
// enabling arms one immediately.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	if !enabled {
		s.stopLocked()
		return
	}
	s.armLocked()
}

// ScanStarted marks a scan as in flight. Manual scans should call this too
// so a timer tick does not start a second scan.
func (s *Scheduler) ScanStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = true
	s.stopLocked()
}

// ScheduleNext marks the scan as terminated and re-arms the timer. Called
// after every terminal event, success or failure.
func (s *Scheduler) ScheduleNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.armLocked()
}

// Stop disarms the timer without touching the monitoring flag.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) armLocked() {
	s.stopLocked()
	// Zero interval disables scheduling while leaving the flag observable.
	if !s.enabled || s.interval <= 0 || s.inFlight {
		return
	}
	s.timer = time.AfterFunc(s.interval, s.tick)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.enabled || s.inFlight {
		// Skip the tick; the terminal event of the running scan re-arms.
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	trigger := s.trigger
	s.mu.Unlock()

	if trigger != nil {
		trigger()
	}
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
