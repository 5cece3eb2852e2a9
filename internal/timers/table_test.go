package timers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func waitForWaiters(t *testing.T, fc *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d timers: %v", n, err)
	}
}

func TestArm_FiresAfterDuration(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tbl := New(fc)
	var fired atomic.Int32

	tbl.Arm(Turn, "ABC123", 15*time.Second, func() { fired.Add(1) })
	waitForWaiters(t, fc, 1)

	fc.Advance(14 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("timer fired early")
	}
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	if tbl.Pending(Turn, "ABC123") {
		t.Fatalf("fired timer should be removed from the table")
	}
}

func TestArm_SupersedesPreviousTimer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tbl := New(fc)
	var first, second atomic.Int32

	tbl.Arm(Countdown, "M1", 5*time.Second, func() { first.Add(1) })
	fc.Advance(3 * time.Second)
	tbl.Arm(Countdown, "M1", 5*time.Second, func() { second.Add(1) })
	if tbl.Len() != 1 {
		t.Fatalf("expected one pending timer, got %d", tbl.Len())
	}

	fc.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("superseded timer fired")
	}
	fc.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("superseded timer fired late")
	}
}

func TestKindsAreIndependent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tbl := New(fc)
	var turn, notice atomic.Int32

	tbl.Arm(Turn, "M1", time.Second, func() { turn.Add(1) })
	tbl.Arm(Notice, "M1", time.Second, func() { notice.Add(1) })
	if tbl.Len() != 2 {
		t.Fatalf("expected two pending timers, got %d", tbl.Len())
	}
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return turn.Load() == 1 && notice.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDisarm_PreventsFire(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tbl := New(fc)
	var fired atomic.Int32

	tbl.Arm(Turn, "M1", time.Second, func() { fired.Add(1) })
	if !tbl.Disarm(Turn, "M1") {
		t.Fatalf("Disarm should report the pending timer")
	}
	if tbl.Disarm(Turn, "M1") {
		t.Fatalf("second Disarm should be a no-op")
	}
	fc.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("disarmed timer fired")
	}
}

func TestDisarmScope(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tbl := New(fc)
	noop := func() {}

	tbl.Arm(Turn, "M1", time.Second, noop)
	tbl.Arm(Forfeit, "M1:1", time.Second, noop)
	tbl.Arm(Forfeit, "M1:2", time.Second, noop)
	tbl.Arm(Turn, "M10", time.Second, noop)

	if n := tbl.DisarmScope("M1"); n != 3 {
		t.Fatalf("DisarmScope cancelled %d timers, want 3", n)
	}
	if !tbl.Pending(Turn, "M10") {
		t.Fatalf("timer for a different match must survive")
	}
}

func TestClose_StopsEverything(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tbl := New(fc)
	var fired atomic.Int32

	tbl.Arm(Turn, "M1", time.Second, func() { fired.Add(1) })
	tbl.Close()
	tbl.Arm(Turn, "M2", time.Second, func() { fired.Add(1) })
	if tbl.Len() != 0 {
		t.Fatalf("closed table holds %d timers", tbl.Len())
	}
	fc.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("timer fired after Close")
	}
}
