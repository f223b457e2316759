package room

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

// fakeDir implements set-if-absent claims in memory.
type fakeDir struct {
	mu     sync.Mutex
	roomID string
	claims int
}

func (f *fakeDir) Appointment(ctx context.Context, id string) (*directory.Appointment, error) {
	return nil, directory.ErrNotFound
}

func (f *fakeDir) ClaimRoom(ctx context.Context, id, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.roomID == "" {
		f.roomID = roomID
	}
	return f.roomID, nil
}

func (f *fakeDir) History(ctx context.Context, id string) ([]directory.Message, error) {
	return []directory.Message{}, nil
}

func TestEnsureExistingRoomUntouched(t *testing.T) {
	dir := &fakeDir{}
	appt := &directory.Appointment{ID: "a1", RoomID: "visit-a1-existing"}

	got, err := Ensure(context.Background(), dir, appt)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got != "visit-a1-existing" {
		t.Fatalf("got %q", got)
	}
	if dir.claims != 0 {
		t.Fatalf("existing room must not trigger a claim, got %d claims", dir.claims)
	}
}

func TestEnsureAllocatesOnce(t *testing.T) {
	dir := &fakeDir{}
	appt := &directory.Appointment{ID: "a1", ScheduledAt: time.Now()}

	first, err := Ensure(context.Background(), dir, appt)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !strings.HasPrefix(first, "visit-a1-") {
		t.Fatalf("unexpected room id %q", first)
	}

	// Second joiner fetched the appointment before the claim landed.
	second, err := Ensure(context.Background(), dir, appt)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if second != first {
		t.Fatalf("joiners diverged: %q vs %q", first, second)
	}
}

func TestEnsureConcurrentConverges(t *testing.T) {
	dir := &fakeDir{}
	appt := &directory.Appointment{ID: "a1"}

	const n = 10
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := Ensure(context.Background(), dir, appt)
			if err != nil {
				t.Errorf("Ensure: %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("joiners diverged: %q vs %q", results[0], results[i])
		}
	}
}

func TestNewIDShape(t *testing.T) {
	a := NewID("appt-7")
	b := NewID("appt-7")
	if a == b {
		t.Fatalf("ids must be unique, got %q twice", a)
	}
	if !strings.HasPrefix(a, "visit-appt-7-") {
		t.Fatalf("unexpected shape %q", a)
	}
}
