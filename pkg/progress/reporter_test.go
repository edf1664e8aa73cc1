package progress

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestObserve_IntervalGate(t *testing.T) {
	clock := newFakeClock()
	r := NewReporter(1000, WithClock(clock.now), WithInterval(3*time.Second), WithCountGate(1000000))

	// Below both gates: no snapshot
	if snap := r.Observe(10); snap != nil {
		t.Error("Expected no snapshot before the interval elapsed")
	}

	clock.advance(3 * time.Second)
	snap := r.Observe(20)
	if snap == nil {
		t.Fatal("Expected a snapshot after the interval elapsed")
	}
	if snap.Processed != 30 {
		t.Errorf("Expected 30 processed, got %d", snap.Processed)
	}

	// Gate resets after emission
	if snap := r.Observe(5); snap != nil {
		t.Error("Expected no snapshot right after an emission")
	}
}

func TestObserve_CountGate(t *testing.T) {
	clock := newFakeClock()
	r := NewReporter(100000, WithClock(clock.now), WithInterval(time.Hour), WithCountGate(50))

	if snap := r.Observe(49); snap != nil {
		t.Error("Expected no snapshot below the count gate")
	}
	clock.advance(time.Second)
	snap := r.Observe(1)
	if snap == nil {
		t.Fatal("Expected a snapshot at the count gate")
	}
	if snap.Processed != 50 {
		t.Errorf("Expected 50 processed, got %d", snap.Processed)
	}
}

func TestSnapshot_InstantaneousRate(t *testing.T) {
	clock := newFakeClock()
	r := NewReporter(1000, WithClock(clock.now), WithInterval(time.Second), WithCountGate(1000000))

	// First window: 100 records in 1s
	clock.advance(time.Second)
	snap := r.Observe(100)
	if snap == nil {
		t.Fatal("Expected a snapshot")
	}
	if snap.RatePerSecond != 100 {
		t.Errorf("Expected rate 100, got %g", snap.RatePerSecond)
	}

	// Second window: 10 records in 1s. Rate is per-window, not cumulative.
	clock.advance(time.Second)
	snap = r.Observe(10)
	if snap == nil {
		t.Fatal("Expected a snapshot")
	}
	if snap.RatePerSecond != 10 {
		t.Errorf("Expected instantaneous rate 10, got %g", snap.RatePerSecond)
	}
}

func TestSnapshot_ETA(t *testing.T) {
	clock := newFakeClock()
	r := NewReporter(300, WithClock(clock.now), WithInterval(time.Second), WithCountGate(1000000))

	clock.advance(time.Second)
	snap := r.Observe(100)
	if snap == nil {
		t.Fatal("Expected a snapshot")
	}
	if !snap.RemainingKnown {
		t.Fatal("Expected known ETA with a positive rate")
	}
	// 200 left at 100 rec/s
	if snap.Remaining != 2*time.Second {
		t.Errorf("Expected 2s remaining, got %v", snap.Remaining)
	}
	if p := snap.Percent(); p < 33.3 || p > 33.4 {
		t.Errorf("Unexpected percent: %g", p)
	}
}

func TestSnapshot_UnknownETAAtZeroRate(t *testing.T) {
	clock := newFakeClock()
	r := NewReporter(1000, WithClock(clock.now), WithInterval(time.Second), WithCountGate(1000000))

	// Interval passed with no records processed
	clock.advance(2 * time.Second)
	snap := r.Observe(0)
	if snap == nil {
		t.Fatal("Expected a snapshot after the interval")
	}
	if snap.RemainingKnown {
		t.Error("Expected unknown ETA at zero rate")
	}
}

func TestFinal(t *testing.T) {
	clock := newFakeClock()
	r := NewReporter(100, WithClock(clock.now), WithInterval(time.Hour), WithCountGate(1000000))

	r.Observe(40)
	clock.advance(2 * time.Second)
	r.Observe(60)

	// Final ignores the gates and reports the whole-phase average
	snap := r.Final()
	if snap.Processed != 100 {
		t.Errorf("Expected 100 processed, got %d", snap.Processed)
	}
	if snap.RatePerSecond != 50 {
		t.Errorf("Expected average rate 50, got %g", snap.RatePerSecond)
	}
	if snap.Percent() != 100 {
		t.Errorf("Expected 100%%, got %g", snap.Percent())
	}
}

func TestPercent_ZeroTotal(t *testing.T) {
	snap := Snapshot{Processed: 10, Total: 0}
	if snap.Percent() != 0 {
		t.Errorf("Expected 0%% for zero total, got %g", snap.Percent())
	}
}
