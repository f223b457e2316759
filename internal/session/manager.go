package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/channel"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/gate"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/identity"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/provider"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/room"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/util"
)

// Manager owns live sessions and runs the join pipeline.
type Manager struct {
	dir       directory.Directory
	gate      *gate.Gate
	loader    *provider.Loader
	factory   provider.Factory
	transport channel.Transport

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager wires the session pipeline together.
func NewManager(dir directory.Directory, g *gate.Gate, loader *provider.Loader,
	factory provider.Factory, transport channel.Transport) *Manager {
	return &Manager{
		dir:       dir,
		gate:      g,
		loader:    loader,
		factory:   factory,
		transport: transport,
		sessions:  make(map[string]*Session),
	}
}

// CheckAccess evaluates the gate for an appointment without joining.
// Backs the waiting-room countdown.
func (m *Manager) CheckAccess(ctx context.Context, appointmentID string) (gate.Decision, error) {
	appt, err := m.dir.Appointment(ctx, appointmentID)
	if err != nil {
		return gate.Decision{}, err
	}
	return m.gate.Evaluate(appt), nil
}

// Countdown starts a gate countdown for an appointment. Backs the
// waiting-room stream; the caller must Stop it when the watcher goes away.
func (m *Manager) Countdown(ctx context.Context, appointmentID string, interval time.Duration) (*gate.Countdown, error) {
	appt, err := m.dir.Appointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return m.gate.Countdown(appt, interval), nil
}

// Join runs the full pipeline: appointment fetch, participant match, gate,
// room bootstrap, then video and chat startup. Video and chat proceed
// asynchronously; the returned session streams their progress.
func (m *Manager) Join(ctx context.Context, appointmentID, userID string) (*Session, error) {
	appt, err := m.dir.Appointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	rec, ok := participantRecord(appt, userID)
	if !ok {
		return nil, fmt.Errorf("user %s on appointment %s: %w", userID, appointmentID, ErrNotParticipant)
	}
	role := identity.Resolve(rec)
	displayName := identity.DisplayName(rec)

	if d := m.gate.Evaluate(appt); !d.Allowed {
		return nil, &TooEarlyError{Decision: d}
	}

	roomID, err := room.Ensure(ctx, m.dir, appt)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	cfg := provider.ClientConfig{
		RoomID:      roomID,
		DisplayName: displayName,
		Email:       rec.Email,
		Subject:     subjectFor(appt),
		Tag:         sessionID,
	}
	s := &Session{
		ID:            sessionID,
		AppointmentID: appointmentID,
		RoomID:        roomID,
		Role:          role,
		DisplayName:   displayName,
		mgr:           m,
		cfg:           cfg,
		chn:           channel.New(appointmentID, userID, string(role), m.transport, m.dir),
		adapter:       provider.NewAdapter(cfg, m.loader, m.factory),
		listeners:     make(map[int]chan Event),
		backlog:       util.NewRingBuffer[Event](eventBacklog),
	}
	s.adapter.OnClosed(func() { go s.Leave() })

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.watchVideo(s.adapter)
	s.watchChat()

	// The join request's context dies with the HTTP response; the session
	// legs live until Leave.
	s.adapter.Start(context.WithoutCancel(ctx))
	s.chn.Connect(context.WithoutCancel(ctx))

	log.Infow("session joined", "session", s.ID, "appointment", appointmentID,
		"role", role, "room", roomID)
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	return s, ok
}

// Close ends every live session. Used at shutdown.
func (m *Manager) Close() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.Leave()
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// participantRecord matches the joining user against the appointment's two
// parties.
func participantRecord(appt *directory.Appointment, userID string) (identity.Record, bool) {
	for _, id := range []directory.Identity{appt.Doctor, appt.Patient} {
		if id.ID == userID {
			return identity.Record{
				ID:          id.ID,
				Name:        id.Name,
				Email:       id.Email,
				Role:        id.Role,
				UserRole:    id.UserRole,
				Type:        id.Type,
				Authorities: id.Authorities,
			}, true
		}
	}
	return identity.Record{}, false
}

func subjectFor(appt *directory.Appointment) string {
	return "Visit " + appt.ID
}
