// Package budget implements the rolling-window consumption ledger and the
// adaptation policy table.
package budget

import (
	"sync"
	"time"

	"github.com/taskgov/governor/contracts"
)

// Ledger construction defaults.
const (
	DefaultWindow           = 5 * time.Hour
	DefaultSafetyMargin     = 0.85
	DefaultReservedFraction = 0.10
)

// LedgerConfig fixes the ledger's construction parameters.
type LedgerConfig struct {
	// Budget is the hard consumption budget per rolling window.
	Budget contracts.Units

	// SafetyMargin scales the budget down before anything is spent
	// (0 < margin <= 1). Zero falls back to the default.
	SafetyMargin float64

	// ReservedFraction is the share of the budget held back as an emergency
	// pool, never handed to normal admission. Zero falls back to the default.
	ReservedFraction float64

	// Window is the rolling-window duration. Zero falls back to the default.
	Window time.Duration
}

// ledger implements contracts.Ledger. Entries age out strictly by wall-clock
// time, never by count; pruning happens on every mutation and read so the
// window sum can never double-count an aged-out entry.
type ledger struct {
	mu sync.Mutex

	budget   contracts.Units
	margin   float64
	reserved contracts.Units
	window   time.Duration

	start   time.Time
	entries []contracts.LedgerEntry
	now     func() time.Time
}

// NewLedger creates a Ledger. sessionStart anchors burn-rate elapsed time.
func NewLedger(cfg LedgerConfig, sessionStart time.Time) contracts.Ledger {
	return newLedger(cfg, sessionStart, time.Now)
}

func newLedger(cfg LedgerConfig, sessionStart time.Time, now func() time.Time) *ledger {
	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin > 1 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.ReservedFraction < 0 || cfg.ReservedFraction >= 1 {
		cfg.ReservedFraction = DefaultReservedFraction
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if sessionStart.IsZero() {
		sessionStart = now()
	}
	return &ledger{
		budget:   cfg.Budget,
		margin:   cfg.SafetyMargin,
		reserved: contracts.Units(float64(cfg.Budget) * cfg.ReservedFraction),
		window:   cfg.Window,
		start:    sessionStart,
		now:      now,
	}
}

// Record appends an entry and prunes anything older than the window.
func (l *ledger) Record(units contracts.Units, at time.Time, task contracts.TaskID) {
	if units <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if at.IsZero() {
		at = l.now()
	}
	l.entries = append(l.entries, contracts.LedgerEntry{At: at, Units: units, Task: task})
	l.prune(l.now())
}

// prune drops entries that aged out of the rolling window. Caller holds mu.
func (l *ledger) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.entries); i++ {
		if l.entries[i].At.After(cutoff) {
			break
		}
	}
	if i > 0 {
		l.entries = append(l.entries[:0], l.entries[i:]...)
	}
}

// windowSum returns the in-window consumption. Caller holds mu.
func (l *ledger) windowSum(now time.Time) contracts.Units {
	l.prune(now)
	var sum contracts.Units
	for _, e := range l.entries {
		sum += e.Units
	}
	return sum
}

// usable returns the admission budget after margin and reserved pool.
func (l *ledger) usable() contracts.Units {
	return contracts.Units(float64(l.budget)*l.margin) - l.reserved
}

func (l *ledger) Remaining() contracts.Units {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usable() - l.windowSum(l.now())
}

func (l *ledger) RemainingPercent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	usable := l.usable()
	if usable <= 0 {
		return 0
	}
	rem := usable - l.windowSum(l.now())
	if rem <= 0 {
		return 0
	}
	return float64(rem) / float64(usable) * 100
}

func (l *ledger) BurnRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burnRate(l.now())
}

// burnRate computes units/hour over elapsed session time. Caller holds mu.
func (l *ledger) burnRate(now time.Time) float64 {
	elapsed := now.Sub(l.start).Hours()
	if elapsed <= 0 {
		return 0
	}
	return float64(l.windowSum(now)) / elapsed
}

func (l *ledger) ProjectedExhaustion() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rate := l.burnRate(now)
	if rate <= 0 {
		return 0, true
	}
	rem := l.usable() - l.windowSum(now)
	if rem <= 0 {
		return 0, false
	}
	hours := float64(rem) / rate
	return time.Duration(hours * float64(time.Hour)), false
}

func (l *ledger) Snapshot() contracts.LedgerSnapshot {
	l.mu.Lock()
	now := l.now()
	used := l.windowSum(now)
	rem := l.usable() - used
	rate := l.burnRate(now)
	l.mu.Unlock()

	snap := contracts.LedgerSnapshot{
		Budget:     l.budget,
		Remaining:  rem,
		WindowUsed: used,
		BurnRate:   rate,
	}
	if rate <= 0 {
		snap.Unbounded = true
	} else if rem > 0 {
		snap.Exhaustion = time.Duration(float64(rem) / rate * float64(time.Hour))
	}
	return snap
}
