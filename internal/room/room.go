// Package room allocates the conference room id for an appointment. The
// first joiner mints a candidate and asks the directory to claim it; the
// directory enforces set-if-absent, so every joiner converges on one id.
package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

var log = logging.Logger("room")

const idPrefix = "visit"

// Ensure returns the appointment's room id, allocating one if none exists
// yet. Calling it again for the same appointment always yields the same id.
func Ensure(ctx context.Context, dir directory.Directory, appt *directory.Appointment) (string, error) {
	if appt.RoomID != "" {
		return appt.RoomID, nil
	}

	candidate := NewID(appt.ID)
	got, err := dir.ClaimRoom(ctx, appt.ID, candidate)
	if err != nil {
		return "", fmt.Errorf("ensure room for %s: %w", appt.ID, err)
	}
	if got != candidate {
		log.Debugf("lost room claim for %s, using %s", appt.ID, got)
	}
	return got, nil
}

// NewID mints a room id candidate. The appointment id keeps it traceable in
// provider logs; the random suffix keeps it unguessable.
func NewID(appointmentID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s-%s", idPrefix, appointmentID, suffix[:12])
}
