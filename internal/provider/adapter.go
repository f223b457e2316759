package provider

import (
	"context"
	"sync"
	"time"
)

// State is the adapter's connection state.
type State string

const (
	StateIdle          State = "IDLE"
	StateScriptLoading State = "SCRIPT_LOADING"
	StateInitializing  State = "INITIALIZING"
	StateConnecting    State = "CONNECTING_TO_ROOM"
	StateConnected     State = "CONNECTED"
	StateFailed        State = "FAILED"
)

// Failure reasons carried in Status.Reason when State is StateFailed.
const (
	FailScript   = "script-load"
	FailInit     = "client-init"
	FailTimeout  = "timeout"
	FailProvider = "provider"
)

// Status is one observable point in the adapter lifecycle.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

const (
	// ConnectTimeout is the hard ceiling on reaching the room. Past it the
	// attempt is declared failed no matter what the embed is doing.
	ConnectTimeout = 25 * time.Second

	// SurfaceProbeDelay is when the adapter checks whether the embed
	// surface rendered despite no join event arriving. Some provider
	// builds connect fine but never fire their join callbacks.
	SurfaceProbeDelay = 8 * time.Second

	// greetDelay gives the embed a moment to settle before the display
	// name and subject commands are pushed at it.
	greetDelay = 2 * time.Second
)

type loopMsgKind int

const (
	msgJoined loopMsgKind = iota
	msgFailed
	msgLeft
	msgClosed
	msgHardTimeout
	msgSurfaceProbe
)

type loopMsg struct {
	kind  loopMsgKind
	event string
}

// Adapter walks one connection attempt through the provider lifecycle.
// Single use: a retry is a fresh Adapter. All transitions happen on one
// internal goroutine, so handlers and timers never race on state.
type Adapter struct {
	cfg     ClientConfig
	loader  *Loader
	factory Factory

	mu        sync.RWMutex
	status    Status
	client    Client
	listeners map[int]chan Status
	nextID    int
	onClosed  func()
	stopped   bool

	loopCh     chan loopMsg
	stopCh     chan struct{}
	hardTimer  *time.Timer
	probeTimer *time.Timer
	greetTimer *time.Timer
}

// NewAdapter creates an adapter in StateIdle. Nothing happens until Start.
func NewAdapter(cfg ClientConfig, loader *Loader, factory Factory) *Adapter {
	return &Adapter{
		cfg:       cfg,
		loader:    loader,
		factory:   factory,
		status:    Status{State: StateIdle},
		listeners: make(map[int]chan Status),
		loopCh:    make(chan loopMsg, 8),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the connection attempt. It returns immediately; progress
// streams through Subscribe.
func (a *Adapter) Start(ctx context.Context) {
	go a.run(ctx)
}

// Status returns the current lifecycle point.
func (a *Adapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Subscribe returns a channel of status updates and a cancel func. Slow
// consumers miss intermediate updates rather than blocking the adapter.
func (a *Adapter) Subscribe() (<-chan Status, func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	ch := make(chan Status, 8)
	a.listeners[id] = ch
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if l, ok := a.listeners[id]; ok {
			delete(a.listeners, id)
			close(l)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// OnClosed registers a callback fired when the embed reports it is done
// (participant hung up inside the provider UI).
func (a *Adapter) OnClosed(fn func()) {
	a.mu.Lock()
	a.onClosed = fn
	a.mu.Unlock()
}

// Stop tears the attempt down: timers cancelled, embed disposed. Safe to
// call multiple times and from any state.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	client := a.client
	a.mu.Unlock()

	close(a.stopCh)
	a.cancelTimers()

	if client != nil {
		a.disposeClient(client)
	}
}

// disposeClient shields against a bridge that is already torn down on the
// browser side.
func (a *Adapter) disposeClient(client Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("provider dispose panicked", "room", a.cfg.RoomID, "panic", r)
		}
	}()
	if err := client.Dispose(); err != nil {
		log.Debugf("provider dispose for %s: %v", a.cfg.RoomID, err)
	}
}

func (a *Adapter) cancelTimers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range []*time.Timer{a.hardTimer, a.probeTimer, a.greetTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

// selfEvent reports whether a payload carrying a participant id refers to
// the embed's own participant. Comparable ids on both sides must match;
// anything less is inconclusive and accepted.
func selfEvent(client Client, payload map[string]any) bool {
	sr, ok := client.(SelfReporter)
	if !ok || sr.SelfID() == "" {
		return true
	}
	id, ok := payload["id"].(string)
	if !ok || id == "" {
		return true
	}
	return id == sr.SelfID()
}

// push hands a message to the event loop unless the adapter is stopped.
func (a *Adapter) push(m loopMsg) {
	select {
	case a.loopCh <- m:
	case <-a.stopCh:
	}
}

func (a *Adapter) setStatus(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
	for _, ch := range a.listeners {
		select {
		case ch <- s:
		default:
		}
	}
}

func (a *Adapter) run(ctx context.Context) {
	a.setStatus(Status{State: StateScriptLoading})
	if _, err := a.loader.Load(ctx); err != nil {
		log.Warnw("provider script load failed", "room", a.cfg.RoomID, "err", err)
		a.setStatus(Status{State: StateFailed, Reason: FailScript})
		return
	}

	a.setStatus(Status{State: StateInitializing})
	client, err := a.factory(ctx, a.cfg)
	if err != nil {
		log.Warnw("provider client init failed", "room", a.cfg.RoomID, "err", err)
		a.setStatus(Status{State: StateFailed, Reason: FailInit})
		return
	}
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		a.disposeClient(client)
		return
	}
	a.client = client
	a.mu.Unlock()

	// Handlers must be in place before the embed starts connecting, or an
	// early join event is lost.
	for _, evt := range joinEvents {
		evt := evt
		client.On(evt, func(p map[string]any) {
			if evt == EvtParticipantRoleChanged && !selfEvent(client, p) {
				return
			}
			a.push(loopMsg{kind: msgJoined, event: evt})
		})
	}
	client.On(EvtConnectionFailed, func(map[string]any) {
		a.push(loopMsg{kind: msgFailed, event: EvtConnectionFailed})
	})
	client.On(EvtVideoConferenceLeft, func(map[string]any) {
		a.push(loopMsg{kind: msgLeft, event: EvtVideoConferenceLeft})
	})
	client.On(EvtReadyToClose, func(map[string]any) {
		a.push(loopMsg{kind: msgClosed, event: EvtReadyToClose})
	})

	a.setStatus(Status{State: StateConnecting})
	a.mu.Lock()
	a.hardTimer = time.AfterFunc(ConnectTimeout, func() {
		a.push(loopMsg{kind: msgHardTimeout})
	})
	a.probeTimer = time.AfterFunc(SurfaceProbeDelay, func() {
		a.push(loopMsg{kind: msgSurfaceProbe})
	})
	a.mu.Unlock()

	a.loop(client)
}

func (a *Adapter) loop(client Client) {
	for {
		select {
		case <-a.stopCh:
			return
		case m := <-a.loopCh:
			switch m.kind {
			case msgJoined:
				// First join-shaped event wins; the rest are echoes.
				if a.Status().State != StateConnecting {
					continue
				}
				log.Infof("room %s connected (%s)", a.cfg.RoomID, m.event)
				a.connected(client)

			case msgSurfaceProbe:
				if a.Status().State != StateConnecting {
					continue
				}
				if sr, ok := client.(SurfaceReporter); ok && sr.SurfaceAttached() {
					log.Infof("room %s: no join event but surface is up, assuming connected", a.cfg.RoomID)
					a.connected(client)
				}

			case msgHardTimeout:
				if a.Status().State == StateConnected {
					continue
				}
				log.Warnw("provider connect timed out", "room", a.cfg.RoomID, "after", ConnectTimeout)
				a.setStatus(Status{State: StateFailed, Reason: FailTimeout})
				return

			case msgFailed:
				log.Warnw("provider reported failure", "room", a.cfg.RoomID, "event", m.event)
				a.setStatus(Status{State: StateFailed, Reason: FailProvider})
				return

			case msgLeft:
				// Leaving before the room was ever reached is a failed
				// attempt. After that it is a hangup.
				if a.Status().State != StateConnected {
					log.Warnw("provider left before joining", "room", a.cfg.RoomID)
					a.setStatus(Status{State: StateFailed, Reason: FailProvider})
					return
				}
				a.push(loopMsg{kind: msgClosed, event: m.event})

			case msgClosed:
				a.mu.RLock()
				fn := a.onClosed
				a.mu.RUnlock()
				if fn != nil {
					fn()
				}
				return
			}
		}
	}
}

func (a *Adapter) connected(client Client) {
	a.cancelTimers()
	a.setStatus(Status{State: StateConnected})

	a.mu.Lock()
	a.greetTimer = time.AfterFunc(greetDelay, func() {
		a.greet(client)
	})
	a.mu.Unlock()
}

// greet pushes display name and subject into the embed. Best effort; a
// participant in a room with a blank name beats a failed session.
func (a *Adapter) greet(client Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("provider greet panicked: %v", r)
		}
	}()
	if a.cfg.DisplayName != "" {
		if err := client.ExecuteCommand("displayName", a.cfg.DisplayName); err != nil {
			log.Debugf("set display name: %v", err)
		}
	}
	if a.cfg.Email != "" {
		if err := client.ExecuteCommand("email", a.cfg.Email); err != nil {
			log.Debugf("set email: %v", err)
		}
	}
	if a.cfg.Subject != "" {
		if err := client.ExecuteCommand("subject", a.cfg.Subject); err != nil {
			log.Debugf("set subject: %v", err)
		}
	}
}
