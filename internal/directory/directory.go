// Package directory is the coordinator's view of the appointment directory:
// appointment lookups, room-id claims, and chat history. Appointments are
// owned by the directory; this process borrows one for a session's
// duration and never persists it.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the directory has no appointment for an id.
var ErrNotFound = errors.New("appointment not found")

// Appointment is one scheduled visit as the directory returns it.
// RoomID is empty until a first joiner allocates it; once set it is
// immutable and every fetch returns the identical value.
type Appointment struct {
	ID              string    `json:"appointmentId"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes"`
	RoomID          string    `json:"roomId,omitempty"`
	Doctor          Identity  `json:"doctorIdentity"`
	Patient         Identity  `json:"patientIdentity"`
	Type            string    `json:"type"`
}

// Identity is the role-bearing identity shape embedded in an appointment.
// Kept as raw fields here; internal/identity derives the role judgment.
type Identity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	UserRole    string   `json:"userRole,omitempty"`
	Type        string   `json:"type,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
}

// Message is one chat history row, already in wire shape.
type Message struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointmentId"`
	SenderID      string    `json:"senderId"`
	SenderRole    string    `json:"senderRole"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sentAt"`
}

// Directory is the only surface the coordinator needs from the appointment
// backend. Implemented by Client (HTTP) and Store (local SQLite).
type Directory interface {
	// Appointment fetches one appointment by id.
	Appointment(ctx context.Context, id string) (*Appointment, error)

	// ClaimRoom persists roomID for the appointment if and only if no room
	// id is set yet, and returns the authoritative value either way. Two
	// near-simultaneous claimers converge on one id.
	ClaimRoom(ctx context.Context, id, roomID string) (string, error)

	// History returns the appointment's chat history in chronological
	// order. No history is an empty slice, not an error.
	History(ctx context.Context, id string) ([]Message, error)
}
