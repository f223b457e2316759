package channel

import (
	"sort"
	"sync"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
)

// Transcript is the deduplicated view of a session's chat. Replayed history
// sits ahead of live messages, live messages keep the order they arrived
// in, and a message never moves once appended. The message id is the dedup
// key, so a reconnect replay never doubles a line.
type Transcript struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	msgs    []directory.Message
	history int // msgs[:history] is replayed history, the rest is live
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{seen: make(map[string]struct{})}
}

// Add appends one live message in receipt order. Returns false if the id
// was already present.
func (t *Transcript) Add(m directory.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[m.ID]; dup {
		return false
	}
	t.seen[m.ID] = struct{}{}
	t.msgs = append(t.msgs, m)
	return true
}

// Merge folds a fetched history into the transcript. Messages already
// present by id are skipped; the rest are ordered among themselves by send
// time and slotted in ahead of any live messages already received. Returns
// how many messages were new.
func (t *Transcript) Merge(history []directory.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []directory.Message
	for _, m := range history {
		if _, dup := t.seen[m.ID]; dup {
			continue
		}
		t.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		if !fresh[i].SentAt.Equal(fresh[j].SentAt) {
			return fresh[i].SentAt.Before(fresh[j].SentAt)
		}
		return fresh[i].ID < fresh[j].ID
	})

	merged := make([]directory.Message, 0, len(t.msgs)+len(fresh))
	merged = append(merged, t.msgs[:t.history]...)
	merged = append(merged, fresh...)
	merged = append(merged, t.msgs[t.history:]...)
	t.msgs = merged
	t.history += len(fresh)
	return len(fresh)
}

// Snapshot returns a copy of the transcript in order.
func (t *Transcript) Snapshot() []directory.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]directory.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns how many distinct messages the transcript holds.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}
