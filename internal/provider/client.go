// Package provider drives the embedded video conference provider through
// its connection lifecycle. The provider runs inside the participant's
// browser shell; this package holds the Go-side state machine and talks to
// the embed through the Client interface only.
package provider

import "context"

// Event names the provider emits. Which join event arrives first varies by
// provider build, so all three are treated as the same signal.
const (
	EvtVideoConferenceJoined  = "videoConferenceJoined"
	EvtParticipantRoleChanged = "participantRoleChanged"
	EvtConferenceJoined       = "conferenceJoined"
	EvtConnectionFailed       = "connectionFailed"
	EvtVideoConferenceLeft    = "videoConferenceLeft"
	EvtReadyToClose           = "readyToClose"
)

// joinEvents are the events folded into a single connected transition.
var joinEvents = []string{
	EvtVideoConferenceJoined,
	EvtParticipantRoleChanged,
	EvtConferenceJoined,
}

// ClientConfig is what a client needs to enter a room. Tag is an opaque
// correlation id handed through to the factory; bridged clients use it to
// pair the embed with its HTTP event stream.
type ClientConfig struct {
	RoomID      string
	DisplayName string
	Email       string
	Subject     string
	Tag         string
}

// Client is one live provider embed. Implementations bridge to the actual
// conference running in the browser shell.
type Client interface {
	// On registers a handler for a named provider event. Handlers must be
	// registered before the embed starts connecting.
	On(event string, fn func(payload map[string]any))

	// ExecuteCommand sends a command to the embed (display name, subject,
	// hangup). Best effort; the embed may have gone away.
	ExecuteCommand(name string, args ...any) error

	// Dispose tears the embed down. Idempotent.
	Dispose() error
}

// SurfaceReporter is optionally implemented by clients that can tell
// whether the embed surface actually rendered. Used by the connection
// heuristic for provider builds whose join events never fire.
type SurfaceReporter interface {
	SurfaceAttached() bool
}

// SelfReporter is optionally implemented by clients that know the embed's
// own participant id. A role change for the remote party is not a join
// signal; without ids to compare the event is taken at face value.
type SelfReporter interface {
	SelfID() string
}

// Factory creates a client for a room once the provider script is loaded.
type Factory func(ctx context.Context, cfg ClientConfig) (Client, error)
