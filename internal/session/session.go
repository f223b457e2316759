// Package session ties a participant's visit together: access gating, room
// bootstrap, the video provider lifecycle and the chat channel. Video and
// chat fail independently; a session stays live as long as the participant
// has not left, whatever either leg is doing.
package session

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/channel"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/identity"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/provider"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/util"
)

var log = logging.Logger("session")

// eventBacklog is how many session events a late subscriber can replay.
const eventBacklog = 64

// EventType discriminates session events.
type EventType string

const (
	EventVideo   EventType = "video"
	EventChat    EventType = "chat"
	EventMessage EventType = "message"
	EventEnded   EventType = "ended"
)

// Event is one observable change on a session.
type Event struct {
	Type    EventType          `json:"type"`
	Video   *provider.Status   `json:"video,omitempty"`
	Chat    channel.State      `json:"chat,omitempty"`
	Message *directory.Message `json:"message,omitempty"`
}

// Session is one participant's live presence in an appointment.
type Session struct {
	ID            string
	AppointmentID string
	RoomID        string
	Role          identity.Role
	DisplayName   string

	mgr *Manager
	cfg provider.ClientConfig
	chn *channel.Channel

	mu          sync.RWMutex
	adapter     *provider.Adapter
	videoCancel func()
	listeners   map[int]chan Event
	nextID      int
	ended       bool
	backlog     *util.RingBuffer[Event]
}

// VideoStatus returns the current video leg status.
func (s *Session) VideoStatus() provider.Status {
	s.mu.RLock()
	a := s.adapter
	s.mu.RUnlock()
	return a.Status()
}

// ChatState returns the current chat leg state.
func (s *Session) ChatState() channel.State {
	return s.chn.State()
}

// Transcript returns the chat transcript so far.
func (s *Session) Transcript() []directory.Message {
	return s.chn.Transcript().Snapshot()
}

// SendChat publishes a chat message. Fails fast while the chat leg is down.
func (s *Session) SendChat(text string) (directory.Message, error) {
	s.mu.RLock()
	ended := s.ended
	s.mu.RUnlock()
	if ended {
		return directory.Message{}, ErrSessionEnded
	}
	return s.chn.Send(text)
}

// Events returns the backlog so far plus a live event channel. The backlog
// lets a reconnecting watcher catch up without holding the session open.
func (s *Session) Events() ([]Event, <-chan Event, func()) {
	s.mu.Lock()
	history := s.backlog.Snapshot()
	if s.ended {
		s.mu.Unlock()
		ch := make(chan Event)
		close(ch)
		return history, ch, func() {}
	}
	id := s.nextID
	s.nextID++
	ch := make(chan Event, 32)
	s.listeners[id] = ch
	s.mu.Unlock()

	return history, ch, func() {
		s.mu.Lock()
		if l, ok := s.listeners[id]; ok {
			delete(s.listeners, id)
			close(l)
		}
		s.mu.Unlock()
	}
}

// Retry tears down a failed video connection and starts a fresh attempt.
// The chat leg is untouched.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	old := s.adapter
	if old.Status().State != provider.StateFailed {
		s.mu.Unlock()
		return ErrVideoNotFailed
	}
	if s.videoCancel != nil {
		s.videoCancel()
	}
	s.mu.Unlock()

	old.Stop()

	fresh := provider.NewAdapter(s.cfg, s.mgr.loader, s.mgr.factory)
	fresh.OnClosed(func() { go s.Leave() })

	// Leave can interleave while the old adapter is stopping; an ended
	// session must not pick up a fresh one.
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		fresh.Stop()
		return ErrSessionEnded
	}
	s.adapter = fresh
	s.mu.Unlock()

	s.watchVideo(fresh)
	fresh.Start(context.WithoutCancel(ctx))
	log.Infof("session %s retrying video into %s", s.ID, s.RoomID)
	return nil
}

// Leave ends the session: video disposed, chat disconnected, watchers
// released. Exactly-once; later calls are no-ops.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	adapter := s.adapter
	if s.videoCancel != nil {
		s.videoCancel()
		s.videoCancel = nil
	}
	listeners := s.listeners
	s.listeners = make(map[int]chan Event)
	s.backlog.Push(Event{Type: EventEnded})
	s.mu.Unlock()

	adapter.Stop()
	s.chn.Disconnect()
	s.mgr.remove(s.ID)

	for _, l := range listeners {
		select {
		case l <- Event{Type: EventEnded}:
		default:
		}
		close(l)
	}
	log.Infof("session %s left appointment %s", s.ID, s.AppointmentID)
}

// emit records an event and fans it out. Dropped silently once ended; the
// ended event is the last thing watchers see.
func (s *Session) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.backlog.Push(e)
	for _, l := range s.listeners {
		select {
		case l <- e:
		default:
		}
	}
}

// watchVideo fans one adapter's status stream into session events.
func (s *Session) watchVideo(a *provider.Adapter) {
	sub, cancel := a.Subscribe()
	s.mu.Lock()
	s.videoCancel = cancel
	s.mu.Unlock()

	go func() {
		for st := range sub {
			st := st
			s.emit(Event{Type: EventVideo, Video: &st})
		}
	}()
}

// watchChat fans channel state changes and incoming messages into session
// events. Started once; the chat leg survives video retries.
func (s *Session) watchChat() {
	states, _ := s.chn.States()
	msgs, _ := s.chn.Subscribe()

	go func() {
		for st := range states {
			s.emit(Event{Type: EventChat, Chat: st})
		}
	}()
	go func() {
		for m := range msgs {
			m := m
			s.emit(Event{Type: EventMessage, Message: &m})
		}
	}()
}
