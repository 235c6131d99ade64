package budget

import (
	"math"
	"sync"
	"testing"
	"time"
)

// fakeClock steps time manually so window aging is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{cur: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func TestLedger_UsableBudget(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)

	// 100000 * 0.85 safety margin = 85000, minus 10000 reserved = 75000.
	l := newLedger(LedgerConfig{Budget: 100000}, start, clock.Now)

	if got := l.Remaining(); got != 75000 {
		t.Fatalf("Remaining() = %d, want 75000 before any consumption", got)
	}
	if got := l.RemainingPercent(); math.Abs(got-100) > 1e-9 {
		t.Fatalf("RemainingPercent() = %v, want 100 before any consumption", got)
	}
}

func TestLedger_RemainingNeverIncreasesWithinWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	l := newLedger(LedgerConfig{Budget: 100000}, start, clock.Now)

	prev := l.Remaining()
	for i := 0; i < 10; i++ {
		clock.Advance(time.Minute)
		l.Record(1000, clock.Now(), "task-a")
		got := l.Remaining()
		if got > prev {
			t.Fatalf("Remaining() rose from %d to %d after recording consumption", prev, got)
		}
		if want := prev - 1000; got != want {
			t.Fatalf("Remaining() = %d, want %d after record %d", got, want, i)
		}
		prev = got
	}
}

func TestLedger_WindowAging(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	l := newLedger(LedgerConfig{Budget: 100000, Window: time.Hour}, start, clock.Now)

	l.Record(20000, clock.Now(), "task-a")
	clock.Advance(30 * time.Minute)
	l.Record(5000, clock.Now(), "task-b")

	if got := l.Remaining(); got != 75000-25000 {
		t.Fatalf("Remaining() = %d, want 50000 with both entries in window", got)
	}

	// The first entry ages out at +1h; the second is still in window.
	clock.Advance(31 * time.Minute)
	if got := l.Remaining(); got != 75000-5000 {
		t.Fatalf("Remaining() = %d, want 70000 after first entry aged out", got)
	}

	clock.Advance(30 * time.Minute)
	if got := l.Remaining(); got != 75000 {
		t.Fatalf("Remaining() = %d, want full 75000 after all entries aged out", got)
	}
}

func TestLedger_IgnoresNonPositiveUnits(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	l := newLedger(LedgerConfig{Budget: 100000}, start, clock.Now)

	l.Record(0, clock.Now(), "task-a")
	l.Record(-500, clock.Now(), "task-b")

	if got := l.Remaining(); got != 75000 {
		t.Fatalf("Remaining() = %d, want 75000 after non-positive records", got)
	}
}

func TestLedger_BurnRate(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	l := newLedger(LedgerConfig{Budget: 100000}, start, clock.Now)

	if got := l.BurnRate(); got != 0 {
		t.Fatalf("BurnRate() = %v, want 0 with no elapsed time", got)
	}

	clock.Advance(2 * time.Hour)
	l.Record(10000, clock.Now(), "task-a")

	if got := l.BurnRate(); math.Abs(got-5000) > 1e-9 {
		t.Fatalf("BurnRate() = %v, want 5000 units/hour", got)
	}
}

func TestLedger_ProjectedExhaustion(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	l := newLedger(LedgerConfig{Budget: 100000}, start, clock.Now)

	if _, unbounded := l.ProjectedExhaustion(); !unbounded {
		t.Fatal("ProjectedExhaustion() should be unbounded at zero burn rate")
	}

	clock.Advance(time.Hour)
	l.Record(25000, clock.Now(), "task-a")

	// 50000 remaining at 25000 units/hour projects two hours out.
	d, unbounded := l.ProjectedExhaustion()
	if unbounded {
		t.Fatal("ProjectedExhaustion() unbounded with an active burn rate")
	}
	if d != 2*time.Hour {
		t.Fatalf("ProjectedExhaustion() = %v, want 2h", d)
	}
}

func TestLedger_Snapshot(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	l := newLedger(LedgerConfig{Budget: 100000}, start, clock.Now)

	clock.Advance(time.Hour)
	l.Record(15000, clock.Now(), "task-a")

	snap := l.Snapshot()
	if snap.Budget != 100000 {
		t.Errorf("snapshot budget = %d, want 100000", snap.Budget)
	}
	if snap.WindowUsed != 15000 {
		t.Errorf("snapshot window used = %d, want 15000", snap.WindowUsed)
	}
	if snap.Remaining != 60000 {
		t.Errorf("snapshot remaining = %d, want 60000", snap.Remaining)
	}
	if snap.Unbounded {
		t.Error("snapshot unbounded with an active burn rate")
	}
	if snap.BurnRate <= 0 {
		t.Errorf("snapshot burn rate = %v, want positive", snap.BurnRate)
	}
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	l := newLedger(LedgerConfig{Budget: 1000000}, start, clock.Now)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(10, clock.Now(), "task-a")
				l.Remaining()
			}
		}()
	}
	wg.Wait()

	// 1000000*0.85 - 100000 reserved = 750000 usable, 20*50*10 consumed.
	if got := l.Remaining(); got != 750000-10000 {
		t.Fatalf("Remaining() = %d, want 740000 after concurrent records", got)
	}
}
