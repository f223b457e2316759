// Package channel keeps a chat channel to the visit message broker alive
// for the duration of a session. Wire format: JSON frames on a persistent
// websocket.
package channel

import "github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"

// Frame type constants for the broker protocol.
const (
	FrameSubscribe = "subscribe" // client → broker
	FrameSend      = "send"      // client → broker
	FrameMessage   = "message"   // broker → client
	FrameError     = "error"     // broker → client
)

// sendDestination is the broker's single inbound mailbox. Routing back out
// happens by the message's appointment id, not by destination.
const sendDestination = "visit.chat.send"

// topicPrefix namespaces per-appointment chat topics on the broker.
const topicPrefix = "visit.chat."

// TopicFor returns the broker topic carrying an appointment's chat.
func TopicFor(appointmentID string) string {
	return topicPrefix + appointmentID
}

// Frame is one JSON frame on the broker socket.
type Frame struct {
	Type        string             `json:"type"`
	Topic       string             `json:"topic,omitempty"`
	Destination string             `json:"destination,omitempty"`
	Message     *directory.Message `json:"message,omitempty"`
	Error       string             `json:"error,omitempty"`
}
