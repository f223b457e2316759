package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

type fakeConn struct {
	in        chan *Frame
	mu        sync.Mutex
	written   []*Frame
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan *Frame, 16)}
}

func (c *fakeConn) ReadFrame() (*Frame, error) {
	f, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return f, nil
}

func (c *fakeConn) WriteFrame(f *Frame) error {
	c.mu.Lock()
	c.written = append(c.written, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.in) })
	return nil
}

func (c *fakeConn) frames() []*Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Frame{}, c.written...)
}

// fakeTransport hands out conns in order, blocking dials once exhausted.
type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil, errors.New("no broker")
	}
	c := t.conns[0]
	t.conns = t.conns[1:]
	return c, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	msgs    []directory.Message
	fetches int
}

func (f *fakeHistory) Appointment(ctx context.Context, id string) (*directory.Appointment, error) {
	return nil, directory.ErrNotFound
}

func (f *fakeHistory) ClaimRoom(ctx context.Context, id, roomID string) (string, error) {
	return roomID, nil
}

func (f *fakeHistory) History(ctx context.Context, id string) ([]directory.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return append([]directory.Message{}, f.msgs...), nil
}

func waitChanState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-states:
			if !ok {
				t.Fatalf("state stream closed while waiting for %s", want)
			}
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestChannelConnectSubscribesAndReplaysHistory(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	conn := newFakeConn()
	dir := &fakeHistory{msgs: []directory.Message{msgAt("h1", base)}}
	ch := New("a1", "p1", "PATIENT", &fakeTransport{conns: []*fakeConn{conn}}, dir)

	states, cancel := ch.States()
	defer cancel()
	defer ch.Disconnect()
	ch.Connect(context.Background())

	waitChanState(t, states, StateConnected)

	frames := conn.frames()
	if len(frames) != 1 || frames[0].Type != FrameSubscribe || frames[0].Topic != "visit.chat.a1" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if ch.Transcript().Len() != 1 {
		t.Fatalf("history not merged, len = %d", ch.Transcript().Len())
	}
}

func TestChannelDeliversIncoming(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	conn := newFakeConn()
	ch := New("a1", "p1", "PATIENT", &fakeTransport{conns: []*fakeConn{conn}}, &fakeHistory{})

	states, cancelStates := ch.States()
	defer cancelStates()
	msgs, cancelMsgs := ch.Subscribe()
	defer cancelMsgs()
	defer ch.Disconnect()
	ch.Connect(context.Background())
	waitChanState(t, states, StateConnected)

	in := msgAt("m1", base)
	conn.in <- &Frame{Type: FrameMessage, Message: &in}
	conn.in <- &Frame{Type: FrameMessage, Message: &in} // replay of the same id

	select {
	case got := <-msgs:
		if got.ID != "m1" {
			t.Fatalf("got %s", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message never delivered")
	}
	select {
	case got := <-msgs:
		t.Fatalf("duplicate delivered: %s", got.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelSend(t *testing.T) {
	conn := newFakeConn()
	ch := New("a1", "p1", "PATIENT", &fakeTransport{conns: []*fakeConn{conn}}, &fakeHistory{})

	t.Run("fails fast before connect", func(t *testing.T) {
		if _, err := ch.Send("hello"); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("want ErrNotConnected, got %v", err)
		}
	})

	states, cancel := ch.States()
	defer cancel()
	defer ch.Disconnect()
	ch.Connect(context.Background())
	waitChanState(t, states, StateConnected)

	t.Run("writes a send frame and echoes locally", func(t *testing.T) {
		m, err := ch.Send("hello")
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if m.ID == "" || m.SenderRole != "PATIENT" {
			t.Fatalf("bad message %+v", m)
		}

		frames := conn.frames()
		last := frames[len(frames)-1]
		if last.Type != FrameSend || last.Destination != "visit.chat.send" {
			t.Fatalf("unexpected frame %+v", last)
		}
		if ch.Transcript().Len() != 1 {
			t.Fatalf("no local echo")
		}
	})
}

func TestChannelReconnects(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	first := newFakeConn()
	second := newFakeConn()
	dir := &fakeHistory{msgs: []directory.Message{msgAt("h1", base)}}
	ch := New("a1", "p1", "PATIENT", &fakeTransport{conns: []*fakeConn{first, second}}, dir)

	states, cancel := ch.States()
	defer cancel()
	defer ch.Disconnect()
	ch.Connect(context.Background())
	waitChanState(t, states, StateConnected)

	// Broker drops the link.
	first.Close()
	waitChanState(t, states, StateReconnecting)
	waitChanState(t, states, StateConnected)

	if frames := second.frames(); len(frames) != 1 || frames[0].Type != FrameSubscribe {
		t.Fatalf("no resubscribe on reconnect: %+v", frames)
	}
	if ch.Transcript().Len() != 1 {
		t.Fatalf("history doubled or lost, len = %d", ch.Transcript().Len())
	}

	dir.mu.Lock()
	fetches := dir.fetches
	dir.mu.Unlock()
	if fetches != 2 {
		t.Fatalf("history fetched %d times, want 2", fetches)
	}
}

func TestChannelDisconnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	ch := New("a1", "p1", "PATIENT", &fakeTransport{conns: []*fakeConn{conn}}, &fakeHistory{})

	states, cancel := ch.States()
	defer cancel()
	ch.Connect(context.Background())
	waitChanState(t, states, StateConnected)

	ch.Disconnect()
	ch.Disconnect()

	if _, err := ch.Send("late"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("want ErrNotConnected after disconnect, got %v", err)
	}
	if ch.State() != StateDisconnected {
		t.Fatalf("state = %s", ch.State())
	}
}
