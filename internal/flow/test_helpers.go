package flow

import (
	"context"
	"sync"

	"github.com/BTreeMap/DASSPipe/internal/store"
)

// NewMockStateManager creates a state manager over a fresh in-memory store for testing
func NewMockStateManager() StateManager {
	return NewStoreBasedStateManager(store.NewInMemoryStore())
}

// SentMessage is one message captured by RecordingSender.
type SentMessage struct {
	To   string
	Body string
}

// RecordingSender is a Sender that keeps every message in memory (for tests).
type RecordingSender struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error // returned from SendMessage when set
}

// SendMessage records the message or returns Err.
func (r *RecordingSender) SendMessage(ctx context.Context, to string, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, SentMessage{To: to, Body: body})
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *RecordingSender) Messages() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentMessage(nil), r.sent...)
}

// Last returns the most recent message body, or "".
func (r *RecordingSender) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1].Body
}
