package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAppointment(id string) *Appointment {
	return &Appointment{
		ID:              id,
		ScheduledAt:     time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		DurationMinutes: 20,
		Doctor:          Identity{ID: "d1", Name: "Dr. Mehta", Role: "ROLE_DOCTOR"},
		Patient:         Identity{ID: "p1", Name: "Asha", Role: "patient"},
		Type:            "VIDEO",
	}
}

func TestStoreAppointmentRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutAppointment(ctx, testAppointment("a1")); err != nil {
		t.Fatalf("PutAppointment: %v", err)
	}

	got, err := s.Appointment(ctx, "a1")
	if err != nil {
		t.Fatalf("Appointment: %v", err)
	}
	if got.ID != "a1" || got.DurationMinutes != 20 {
		t.Fatalf("unexpected appointment: %+v", got)
	}
	if !got.ScheduledAt.Equal(time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("scheduled_at drifted: %v", got.ScheduledAt)
	}
	if got.Doctor.Role != "ROLE_DOCTOR" || got.Patient.Name != "Asha" {
		t.Fatalf("identities drifted: %+v / %+v", got.Doctor, got.Patient)
	}
	if got.RoomID != "" {
		t.Fatalf("fresh appointment should have no room id, got %q", got.RoomID)
	}
}

func TestStoreAppointmentNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Appointment(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestStoreClaimRoom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutAppointment(ctx, testAppointment("a1")); err != nil {
		t.Fatalf("PutAppointment: %v", err)
	}

	t.Run("first claim wins", func(t *testing.T) {
		got, err := s.ClaimRoom(ctx, "a1", "visit-a1-alpha")
		if err != nil {
			t.Fatalf("ClaimRoom: %v", err)
		}
		if got != "visit-a1-alpha" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("second claim returns stored id", func(t *testing.T) {
		got, err := s.ClaimRoom(ctx, "a1", "visit-a1-beta")
		if err != nil {
			t.Fatalf("ClaimRoom: %v", err)
		}
		if got != "visit-a1-alpha" {
			t.Fatalf("want first claim to stick, got %q", got)
		}
	})

	t.Run("fetch sees the stored id", func(t *testing.T) {
		appt, err := s.Appointment(ctx, "a1")
		if err != nil {
			t.Fatalf("Appointment: %v", err)
		}
		if appt.RoomID != "visit-a1-alpha" {
			t.Fatalf("got %q", appt.RoomID)
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		if _, err := s.ClaimRoom(ctx, "nope", "visit-x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})
}

func TestStoreClaimRoomConcurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutAppointment(ctx, testAppointment("a1")); err != nil {
		t.Fatalf("PutAppointment: %v", err)
	}

	const n = 8
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.ClaimRoom(ctx, "a1", "visit-a1-"+string(rune('a'+i)))
			if err != nil {
				t.Errorf("ClaimRoom: %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("claimers diverged: %q vs %q", results[0], results[i])
		}
	}
}

func TestStoreHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t.Run("empty is a slice not an error", func(t *testing.T) {
		msgs, err := s.History(ctx, "a1")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if msgs == nil || len(msgs) != 0 {
			t.Fatalf("want empty slice, got %#v", msgs)
		}
	})

	base := time.Date(2026, 3, 14, 10, 31, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		err := s.AppendMessage(ctx, Message{
			ID:            id,
			AppointmentID: "a1",
			SenderID:      "p1",
			SenderRole:    "PATIENT",
			Text:          "hello " + id,
			SentAt:        base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	t.Run("chronological order", func(t *testing.T) {
		msgs, err := s.History(ctx, "a1")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(msgs) != 3 || msgs[0].ID != "m1" || msgs[2].ID != "m3" {
			t.Fatalf("unexpected history: %+v", msgs)
		}
	})

	t.Run("duplicate ids are ignored", func(t *testing.T) {
		err := s.AppendMessage(ctx, Message{
			ID: "m2", AppointmentID: "a1", SenderID: "p1",
			SenderRole: "PATIENT", Text: "replayed", SentAt: base,
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		msgs, _ := s.History(ctx, "a1")
		if len(msgs) != 3 {
			t.Fatalf("duplicate not ignored, got %d messages", len(msgs))
		}
		for _, m := range msgs {
			if m.ID == "m2" && m.Text == "replayed" {
				t.Fatalf("duplicate overwrote original")
			}
		}
	})
}
