package gate

import (
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

var log = logging.Logger("gate")

// DefaultInterval is how often a countdown re-evaluates the gate.
const DefaultInterval = 30 * time.Second

// Countdown periodically re-evaluates a closed gate and streams decisions
// until the gate opens. The channel closes after the first allowed
// decision is delivered, or when Stop is called.
type Countdown struct {
	C <-chan Decision

	ch      chan Decision
	stopCh  chan struct{}
	mu      sync.Mutex
	stopped bool
}

// Countdown starts a ticker that re-evaluates the appointment at the given
// interval. Intervals of zero or below, or above one minute, are clamped to
// DefaultInterval so waiters never see a stale minute count.
func (g *Gate) Countdown(appt *directory.Appointment, interval time.Duration) *Countdown {
	if interval <= 0 || interval > time.Minute {
		interval = DefaultInterval
	}

	c := &Countdown{
		ch:     make(chan Decision, 4),
		stopCh: make(chan struct{}),
	}
	c.C = c.ch

	go c.run(g, appt, interval)
	return c
}

func (c *Countdown) run(g *Gate, appt *directory.Appointment, interval time.Duration) {
	defer close(c.ch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d := g.Evaluate(appt)
		select {
		case c.ch <- d:
		case <-c.stopCh:
			return
		}
		if d.Allowed {
			log.Debugf("gate open for appointment %s", appt.ID)
			return
		}

		select {
		case <-ticker.C:
		case <-c.stopCh:
			return
		}
	}
}

// Stop halts the countdown. Safe to call more than once and after the
// countdown has finished on its own.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
}
