package timers

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/obslog"
)

// Kind separates independent timer families that may share a key.
type Kind string

const (
	Turn      Kind = "turn"
	Countdown Kind = "countdown"
	Notice    Kind = "notice"
	Forfeit   Kind = "forfeit"
)

type entryKey struct {
	kind Kind
	key  string
}

type entry struct {
	timer clockwork.Timer
	gen   uint64
}

// Table holds at most one pending timer per (kind, key). Arming a pair
// that already has a timer stops the old one first. Every entry carries a
// generation; a callback whose entry was superseded or disarmed after the
// clock fired it is dropped instead of run.
type Table struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[entryKey]*entry
	seq     uint64
	closed  bool
}

// New returns a table driven by clock. A nil clock means wall time.
func New(clock clockwork.Clock) *Table {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Table{clock: clock, entries: make(map[entryKey]*entry)}
}

// Arm schedules fn to run once after d, replacing any timer pending for
// (kind, key). fn runs on its own goroutine without the table lock held.
func (t *Table) Arm(kind Kind, key string, d time.Duration, fn func()) {
	if t == nil || fn == nil {
		return
	}
	k := entryKey{kind: kind, key: key}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if old, ok := t.entries[k]; ok {
		old.timer.Stop()
		obslog.L().Debug("timer_superseded", zap.String("kind", string(kind)), zap.String("key", key))
	}
	t.seq++
	gen := t.seq
	e := &entry{gen: gen}
	e.timer = t.clock.AfterFunc(d, func() { t.fire(k, gen, fn) })
	t.entries[k] = e
}

func (t *Table) fire(k entryKey, gen uint64, fn func()) {
	t.mu.Lock()
	cur, ok := t.entries[k]
	if !ok || cur.gen != gen {
		t.mu.Unlock()
		obslog.L().Debug("timer_stale_fire", zap.String("kind", string(k.kind)), zap.String("key", k.key))
		return
	}
	delete(t.entries, k)
	t.mu.Unlock()
	fn()
}

// Disarm cancels the pending timer for (kind, key) and reports whether one existed.
func (t *Table) Disarm(kind Kind, key string) bool {
	if t == nil {
		return false
	}
	k := entryKey{kind: kind, key: key}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[k]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, k)
	return true
}

// DisarmScope cancels every timer, of any kind, whose key is scope or
// starts with scope followed by ':'. It returns the number cancelled.
func (t *Table) DisarmScope(scope string) int {
	if t == nil || scope == "" {
		return 0
	}
	prefix := scope + ":"
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, e := range t.entries {
		if k.key == scope || strings.HasPrefix(k.key, prefix) {
			e.timer.Stop()
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Pending reports whether a timer is armed for (kind, key).
func (t *Table) Pending(kind Kind, key string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[entryKey{kind: kind, key: key}]
	return ok
}

// Len returns the number of pending timers.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops every pending timer and rejects further Arm calls.
func (t *Table) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.closed = true
}
