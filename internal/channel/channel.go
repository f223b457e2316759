package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

var log = logging.Logger("channel")

// ErrNotConnected is returned by Send while the broker link is down. Sends
// fail fast instead of queueing; the participant retries once the channel
// reports connected again.
var ErrNotConnected = errors.New("chat channel not connected")

// State is the channel's link state.
type State string

const (
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateDisconnected State = "DISCONNECTED"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Channel is one appointment's live chat link. It keeps the broker
// subscription alive across drops and folds replayed history into its
// transcript so reconnects never lose or double messages.
type Channel struct {
	appointmentID string
	senderID      string
	senderRole    string
	transport     Transport
	dir           directory.Directory
	transcript    *Transcript

	mu             sync.RWMutex
	state          State
	conn           Conn
	msgListeners   map[int]chan directory.Message
	stateListeners map[int]chan State
	nextID         int
	stopped        bool

	stopCh chan struct{}
}

// New creates a channel for an appointment. Nothing connects until Connect.
func New(appointmentID, senderID, senderRole string, transport Transport, dir directory.Directory) *Channel {
	return &Channel{
		appointmentID:  appointmentID,
		senderID:       senderID,
		senderRole:     senderRole,
		transport:      transport,
		dir:            dir,
		transcript:     NewTranscript(),
		state:          StateDisconnected,
		msgListeners:   make(map[int]chan directory.Message),
		stateListeners: make(map[int]chan State),
		stopCh:         make(chan struct{}),
	}
}

// Connect starts the connect-and-maintain loop. Returns immediately.
func (c *Channel) Connect(ctx context.Context) {
	go c.run(ctx)
}

// State returns the current link state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Transcript returns the channel's message transcript.
func (c *Channel) Transcript() *Transcript {
	return c.transcript
}

// Send publishes one chat message. Fails fast with ErrNotConnected while
// the link is down. The sent message is echoed into the local transcript;
// the broker's replay of it dedups by id.
func (c *Channel) Send(text string) (directory.Message, error) {
	c.mu.RLock()
	state, conn := c.state, c.conn
	c.mu.RUnlock()
	if state != StateConnected || conn == nil {
		return directory.Message{}, ErrNotConnected
	}

	m := directory.Message{
		ID:            uuid.NewString(),
		AppointmentID: c.appointmentID,
		SenderID:      c.senderID,
		SenderRole:    c.senderRole,
		Text:          text,
		SentAt:        time.Now().UTC(),
	}
	if err := conn.WriteFrame(&Frame{Type: FrameSend, Destination: sendDestination, Message: &m}); err != nil {
		return directory.Message{}, err
	}
	if c.transcript.Add(m) {
		c.notify(m)
	}
	return m, nil
}

// Subscribe returns a channel of newly arrived messages and a cancel func.
func (c *Channel) Subscribe() (<-chan directory.Message, func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan directory.Message, 32)
	c.msgListeners[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		if l, ok := c.msgListeners[id]; ok {
			delete(c.msgListeners, id)
			close(l)
		}
		c.mu.Unlock()
	}
}

// States returns a channel of link state changes and a cancel func.
func (c *Channel) States() (<-chan State, func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan State, 8)
	c.stateListeners[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		if l, ok := c.stateListeners[id]; ok {
			delete(c.stateListeners, id)
			close(l)
		}
		c.mu.Unlock()
	}
}

// Disconnect tears the link down for good. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	stateListeners := c.stateListeners
	msgListeners := c.msgListeners
	c.stateListeners = make(map[int]chan State)
	c.msgListeners = make(map[int]chan directory.Message)
	c.mu.Unlock()

	close(c.stopCh)
	if conn != nil {
		conn.Close()
	}
	for _, l := range stateListeners {
		select {
		case l <- StateDisconnected:
		default:
		}
		close(l)
	}
	for _, l := range msgListeners {
		close(l)
	}
	log.Debugf("channel for %s disconnected", c.appointmentID)
}

func (c *Channel) run(ctx context.Context) {
	attempt := 0
	for {
		if c.isStopped() {
			return
		}
		if attempt == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, err := c.transport.Dial(ctx)
		if err != nil {
			log.Warnw("broker dial failed", "appointment", c.appointmentID, "attempt", attempt, "err", err)
			if !c.sleep(backoff(attempt)) {
				return
			}
			attempt++
			continue
		}

		if err := conn.WriteFrame(&Frame{Type: FrameSubscribe, Topic: TopicFor(c.appointmentID)}); err != nil {
			log.Warnw("broker subscribe failed", "appointment", c.appointmentID, "err", err)
			conn.Close()
			if !c.sleep(backoff(attempt)) {
				return
			}
			attempt++
			continue
		}

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.replayHistory(ctx)
		c.setState(StateConnected)
		attempt = 0

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if c.isStopped() {
			return
		}
		log.Infof("broker link for %s dropped, reconnecting", c.appointmentID)
		if !c.sleep(backoff(attempt)) {
			return
		}
		attempt++
	}
}

// replayHistory merges the directory's view of the chat into the
// transcript. Best effort; live traffic still flows if history is
// unavailable.
func (c *Channel) replayHistory(ctx context.Context) {
	history, err := c.dir.History(ctx, c.appointmentID)
	if err != nil {
		log.Warnw("history fetch failed", "appointment", c.appointmentID, "err", err)
		return
	}
	if added := c.transcript.Merge(history); added > 0 {
		log.Debugf("merged %d history messages for %s", added, c.appointmentID)
	}
}

func (c *Channel) readLoop(conn Conn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			return
		}
		switch f.Type {
		case FrameMessage:
			if f.Message == nil {
				continue
			}
			if c.transcript.Add(*f.Message) {
				c.notify(*f.Message)
			}
		case FrameError:
			log.Warnw("broker error frame", "appointment", c.appointmentID, "error", f.Error)
		}
	}
}

func (c *Channel) notify(m directory.Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.msgListeners {
		select {
		case l <- m:
		default:
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.state = s
	for _, l := range c.stateListeners {
		select {
		case l <- s:
		default:
		}
	}
}

func (c *Channel) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

func (c *Channel) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.stopCh:
		return false
	}
}

// backoff doubles per attempt from reconnectBase up to reconnectMax.
func backoff(attempt int) time.Duration {
	d := reconnectBase
	for i := 0; i < attempt && d < reconnectMax; i++ {
		d *= 2
	}
	if d > reconnectMax {
		d = reconnectMax
	}
	return d
}
