// Package gate decides when a participant may enter an appointment's
// session. Entry opens a fixed grace window before the scheduled start and
// never closes on its own; late joiners are let through and overrun is a
// scheduling concern, not an access one.
package gate

import (
	"time"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

// DefaultGrace is how long before the scheduled start the gate opens.
const DefaultGrace = 5 * time.Minute

// Decision is one gate evaluation. When Allowed is false, Wait is the time
// until the gate opens and WaitMinutes is that wait rounded up to whole
// minutes for display.
type Decision struct {
	Allowed     bool          `json:"allowed"`
	Wait        time.Duration `json:"-"`
	WaitMinutes int           `json:"waitMinutes"`
	OpensAt     time.Time     `json:"opensAt"`
}

// Gate evaluates join eligibility against appointment schedules.
type Gate struct {
	Grace time.Duration
	now   func() time.Time
}

// New creates a gate with the given grace window. Zero or negative grace
// falls back to DefaultGrace.
func New(grace time.Duration) *Gate {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Gate{Grace: grace, now: time.Now}
}

// Evaluate judges whether the appointment may be joined right now.
func (g *Gate) Evaluate(appt *directory.Appointment) Decision {
	return g.evaluateAt(appt, g.now())
}

func (g *Gate) evaluateAt(appt *directory.Appointment, now time.Time) Decision {
	opensAt := appt.ScheduledAt.Add(-g.Grace)
	wait := opensAt.Sub(now)
	if wait <= 0 {
		return Decision{Allowed: true, OpensAt: opensAt}
	}
	return Decision{
		Allowed:     false,
		Wait:        wait,
		WaitMinutes: ceilMinutes(wait),
		OpensAt:     opensAt,
	}
}

// ceilMinutes rounds a positive duration up to whole minutes, so a
// 4m01s wait reads as 5 minutes rather than 4.
func ceilMinutes(d time.Duration) int {
	m := int(d / time.Minute)
	if d%time.Minute > 0 {
		m++
	}
	return m
}
