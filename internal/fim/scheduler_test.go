package fim

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_firesAfterInterval(t *testing.T) {
	var fired atomic.Int32
	s := NewScheduler(10*time.Millisecond, true, func() {
		fired.Add(1)
	})
	defer s.Stop()

	s.ScheduleNext()
	waitFor(t, time.Second, func() bool { return fired.Load() >= 1 })
}

func TestScheduler_rearmOnScheduleNext(t *testing.T) {
	var fired atomic.Int32
	var s *Scheduler
	s = NewScheduler(10*time.Millisecond, true, func() {
		fired.Add(1)
		s.ScheduleNext()
	})
	defer s.Stop()

	s.ScheduleNext()
	waitFor(t, 2*time.Second, func() bool { return fired.Load() >= 3 })
}

func TestScheduler_skipsTickWhileInFlight(t *testing.T) {
	var fired atomic.Int32
	s := NewScheduler(10*time.Millisecond, true, func() {
		fired.Add(1)
	})
	defer s.Stop()

	s.ScanStarted()
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("trigger fired %d times during an in-flight scan, want 0", got)
	}

	// The terminal event re-arms.
	s.ScheduleNext()
	waitFor(t, time.Second, func() bool { return fired.Load() >= 1 })
}

func TestScheduler_disabledNeverFires(t *testing.T) {
	var fired atomic.Int32
	s := NewScheduler(10*time.Millisecond, false, func() {
		fired.Add(1)
	})
	defer s.Stop()

	s.ScheduleNext()
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("disabled scheduler fired %d times, want 0", got)
	}
	if s.Enabled() {
		t.Error("Enabled() = true, want false")
	}
}

func TestScheduler_setEnabled(t *testing.T) {
	var fired atomic.Int32
	s := NewScheduler(10*time.Millisecond, false, func() {
		fired.Add(1)
	})
	defer s.Stop()

	s.SetEnabled(true)
	if !s.Enabled() {
		t.Fatal("Enabled() = false after SetEnabled(true)")
	}
	waitFor(t, time.Second, func() bool { return fired.Load() >= 1 })

	s.SetEnabled(false)
	count := fired.Load()
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != count {
		t.Error("scheduler kept firing after SetEnabled(false)")
	}
}

func TestScheduler_zeroIntervalNeverFires(t *testing.T) {
	var fired atomic.Int32
	s := NewScheduler(0, true, func() {
		fired.Add(1)
	})
	defer s.Stop()

	s.ScheduleNext()
	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("zero-interval scheduler fired %d times, want 0", got)
	}
}
