package api

import (
	"context"
	"errors"
	"sync"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/provider"
)

// evtSurfaceReady is posted by the browser shell once the embed's iframe is
// mounted, with the embed's own participant id in the payload when known.
// It never reaches the provider handlers; it feeds the connection heuristic
// and the self-participant check.
const evtSurfaceReady = "surfaceReady"

// Command is one instruction queued for the browser shell to run against
// the embed.
type Command struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

var errBridgeDisposed = errors.New("provider bridge disposed")

// BridgeClient is the Go half of a provider embed that actually lives in
// the participant's browser. Events flow in over POST, commands flow out
// over SSE.
type BridgeClient struct {
	cfg       provider.ClientConfig
	onDispose func()

	mu       sync.Mutex
	handlers map[string][]func(map[string]any)
	commands chan Command
	surface  bool
	selfID   string
	disposed bool
}

func newBridgeClient(cfg provider.ClientConfig, onDispose func()) *BridgeClient {
	return &BridgeClient{
		cfg:       cfg,
		onDispose: onDispose,
		handlers:  make(map[string][]func(map[string]any)),
		commands:  make(chan Command, 16),
	}
}

// Config returns the embed's room parameters for the browser shell.
func (b *BridgeClient) Config() provider.ClientConfig { return b.cfg }

// Commands is the outbound command stream. Closed on Dispose.
func (b *BridgeClient) Commands() <-chan Command { return b.commands }

func (b *BridgeClient) On(event string, fn func(payload map[string]any)) {
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], fn)
	b.mu.Unlock()
}

func (b *BridgeClient) ExecuteCommand(name string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return errBridgeDisposed
	}
	select {
	case b.commands <- Command{Name: name, Args: args}:
		return nil
	default:
		return errors.New("command queue full")
	}
}

func (b *BridgeClient) Dispose() error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return nil
	}
	b.disposed = true
	close(b.commands)
	b.mu.Unlock()

	if b.onDispose != nil {
		b.onDispose()
	}
	return nil
}

// SurfaceAttached reports whether the browser shell confirmed the embed
// surface is mounted.
func (b *BridgeClient) SurfaceAttached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

// SelfID returns the embed's own participant id, once the shell reported it.
func (b *BridgeClient) SelfID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selfID
}

// HandleEvent routes one browser-posted event into the registered provider
// handlers.
func (b *BridgeClient) HandleEvent(name string, payload map[string]any) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	if name == evtSurfaceReady {
		b.surface = true
		if id, ok := payload["id"].(string); ok && id != "" {
			b.selfID = id
		}
		b.mu.Unlock()
		return
	}
	fns := append([]func(map[string]any){}, b.handlers[name]...)
	b.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// BridgeRegistry tracks live bridges by their correlation tag (the session
// id) so HTTP handlers can find the embed a posted event belongs to.
type BridgeRegistry struct {
	mu      sync.RWMutex
	bridges map[string]*BridgeClient
}

func NewBridgeRegistry() *BridgeRegistry {
	return &BridgeRegistry{bridges: make(map[string]*BridgeClient)}
}

// Factory is the provider.Factory wired into the session pipeline.
func (r *BridgeRegistry) Factory(ctx context.Context, cfg provider.ClientConfig) (provider.Client, error) {
	var b *BridgeClient
	b = newBridgeClient(cfg, func() {
		r.mu.Lock()
		if r.bridges[cfg.Tag] == b {
			delete(r.bridges, cfg.Tag)
		}
		r.mu.Unlock()
	})

	r.mu.Lock()
	r.bridges[cfg.Tag] = b
	r.mu.Unlock()
	return b, nil
}

// Get returns the live bridge for a tag.
func (r *BridgeRegistry) Get(tag string) (*BridgeClient, bool) {
	r.mu.RLock()
	b, ok := r.bridges[tag]
	r.mu.RUnlock()
	return b, ok
}
