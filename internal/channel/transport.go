package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live broker connection.
type Conn interface {
	// ReadFrame blocks for the next frame. Returns an error once the
	// connection is gone.
	ReadFrame() (*Frame, error)

	// WriteFrame sends one frame. Safe for concurrent use.
	WriteFrame(*Frame) error

	Close() error
}

// Transport dials broker connections. Swappable so tests can run a channel
// against an in-memory broker.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// wsTransport dials the broker over a websocket.
type wsTransport struct {
	url    string
	dialer *websocket.Dialer
}

// NewWebsocketTransport creates a Transport for the broker at url
// (ws:// or wss://).
func NewWebsocketTransport(url string) Transport {
	return &wsTransport{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *wsTransport) Dial(ctx context.Context) (Conn, error) {
	ws, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s: %w", t.url, err)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn wraps a websocket with a write lock; gorilla allows only one
// concurrent writer.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadFrame() (*Frame, error) {
	var f Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *wsConn) WriteFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(f)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
