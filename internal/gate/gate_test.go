package gate

import (
	"testing"
	"time"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

func apptAt(scheduled time.Time) *directory.Appointment {
	return &directory.Appointment{ID: "a1", ScheduledAt: scheduled, DurationMinutes: 15}
}

func TestEvaluate(t *testing.T) {
	scheduled := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	g := New(5 * time.Minute)

	cases := []struct {
		name        string
		now         time.Time
		wantAllowed bool
		wantMinutes int
	}{
		{"ten minutes early", scheduled.Add(-10 * time.Minute), false, 5},
		{"six minutes early", scheduled.Add(-6 * time.Minute), false, 1},
		{"partial minute rounds up", scheduled.Add(-5*time.Minute - 30*time.Second), false, 1},
		{"exactly at window edge", scheduled.Add(-5 * time.Minute), true, 0},
		{"inside the window", scheduled.Add(-2 * time.Minute), true, 0},
		{"at scheduled time", scheduled, true, 0},
		{"one minute late", scheduled.Add(1 * time.Minute), true, 0},
		{"an hour late still allowed", scheduled.Add(1 * time.Hour), true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g.now = func() time.Time { return tc.now }
			d := g.Evaluate(apptAt(scheduled))
			if d.Allowed != tc.wantAllowed {
				t.Fatalf("allowed = %v, want %v", d.Allowed, tc.wantAllowed)
			}
			if d.WaitMinutes != tc.wantMinutes {
				t.Fatalf("waitMinutes = %d, want %d", d.WaitMinutes, tc.wantMinutes)
			}
			if !d.Allowed && d.Wait <= 0 {
				t.Fatalf("denied decision must carry a positive wait, got %v", d.Wait)
			}
		})
	}
}

func TestEvaluateDefaultGrace(t *testing.T) {
	g := New(0)
	if g.Grace != DefaultGrace {
		t.Fatalf("grace = %v, want %v", g.Grace, DefaultGrace)
	}
}

func TestCountdownStreamsUntilOpen(t *testing.T) {
	scheduled := time.Now().Add(5*time.Minute + 150*time.Millisecond)
	g := New(5 * time.Minute)

	c := g.Countdown(apptAt(scheduled), time.Minute)
	c.Stop()
	// A stopped countdown closes its channel without hanging.
	for range c.C {
	}

	// Drive run directly with a short interval to keep the test quick;
	// the public constructor clamps intervals to at most a minute.
	g2 := New(5 * time.Minute)
	c2 := &Countdown{ch: make(chan Decision, 4), stopCh: make(chan struct{})}
	c2.C = c2.ch
	go c2.run(g2, apptAt(scheduled), 50*time.Millisecond)

	var last Decision
	sawDenied := false
	deadline := time.After(2 * time.Second)
	for {
		select {
		case d, ok := <-c2.C:
			if !ok {
				if !sawDenied {
					t.Fatalf("countdown never reported a wait")
				}
				if !last.Allowed {
					t.Fatalf("countdown closed without opening, last = %+v", last)
				}
				return
			}
			if !d.Allowed {
				sawDenied = true
				if d.WaitMinutes < 1 {
					t.Fatalf("denied decision with waitMinutes %d", d.WaitMinutes)
				}
			}
			last = d
		case <-deadline:
			t.Fatalf("countdown did not finish, last = %+v", last)
		}
	}
}

func TestCountdownStopIdempotent(t *testing.T) {
	g := New(5 * time.Minute)
	c := g.Countdown(apptAt(time.Now().Add(time.Hour)), time.Minute)
	c.Stop()
	c.Stop()
	for range c.C {
	}
}
