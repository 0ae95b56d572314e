package transcript

import (
	"sync"

	"srmchat/internal/models"
)

// Transcript is the ordered, append-only record of exchanged messages.
// Entries are immutable once appended; the only other mutation is the atomic
// Clear.
type Transcript struct {
	mu       sync.RWMutex
	messages []models.Message
}

func New() *Transcript {
	return &Transcript{}
}

// Append adds one message to the end of the transcript.
func (t *Transcript) Append(msg models.Message) {
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
}

// Snapshot returns a copy of the message sequence. Mutating the returned
// slice does not affect the transcript.
func (t *Transcript) Snapshot() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len reports the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Clear empties the transcript in one atomic operation.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
}
