package ratelimit

import (
	"testing"
	"time"
)

func TestCheckAllowsUpToMax(t *testing.T) {
	l := New(3, 60)
	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		res := l.Check("tok-a")
		if !res.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
	}
	res := l.Check("tok-a")
	if res.Allowed {
		t.Fatal("4th request in the same window should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0 on denial, got %d", res.Remaining)
	}
}

func TestCheckIsLinearizablePerToken(t *testing.T) {
	l := New(5, 60)
	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }

	first := l.Check("tok-b")
	second := l.Check("tok-b")
	if second.Remaining >= first.Remaining {
		t.Errorf("expected strictly decreasing remaining within a window: first=%d second=%d", first.Remaining, second.Remaining)
	}
}

func TestCheckTumblesWindowOnExpiry(t *testing.T) {
	l := New(1, 10)
	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }

	first := l.Check("tok-c")
	if !first.Allowed {
		t.Fatal("first request should be allowed")
	}
	denied := l.Check("tok-c")
	if denied.Allowed {
		t.Fatal("second request within the window should be denied")
	}

	clock = clock.Add(11 * time.Second)
	rolledOver := l.Check("tok-c")
	if !rolledOver.Allowed {
		t.Error("request after window elapses should be allowed in a fresh window")
	}
}

func TestPruneRemovesExpiredWindowsOnly(t *testing.T) {
	l := New(10, 5)
	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }

	l.Check("stale")
	clock = clock.Add(6 * time.Second)
	l.Check("fresh")

	l.Prune()
	stats := l.Stats()
	if stats.TotalTokens != 1 {
		t.Errorf("expected exactly one surviving token after prune, got %d", stats.TotalTokens)
	}
}

func TestStatsCountsRequests(t *testing.T) {
	l := New(10, 60)
	l.Check("a")
	l.Check("a")
	l.Check("b")
	stats := l.Stats()
	if stats.TotalRequests != 3 {
		t.Errorf("expected 3 total requests, got %d", stats.TotalRequests)
	}
	if stats.TotalTokens != 2 {
		t.Errorf("expected 2 live tokens, got %d", stats.TotalTokens)
	}
}

func TestStartStopPruningDoesNotPanic(t *testing.T) {
	l := New(10, 1)
	l.StartPruning(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	l.Stop()
	l.Stop() // idempotent
}
