package testutil

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/broker"
)

// ParseUUID parses a UUID string and fails the test if invalid
func ParseUUID(t *testing.T, uuidStr string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(uuidStr)
	if err != nil {
		t.Fatalf("Invalid UUID string: %s, error: %v", uuidStr, err)
	}
	return id
}

// RecordingNotifier captures notifications for assertions.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []broker.Notification
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) Notify(n broker.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// Sent returns a copy of every notification received so far.
func (r *RecordingNotifier) Sent() []broker.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]broker.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent notification, or false if none was sent.
func (r *RecordingNotifier) Last() (broker.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return broker.Notification{}, false
	}
	return r.sent[len(r.sent)-1], true
}

func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
