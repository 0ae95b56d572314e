package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"srmchat/internal/models"
)

// Archive mirrors the in-memory transcript into the database. The transcript
// stays the source of truth for request history; the archive is a durable
// record keyed by conversation.
type Archive struct {
	db *sql.DB

	mu             sync.Mutex
	conversationID int64
}

// NewArchive opens a fresh conversation row and returns the archive bound to
// it.
func NewArchive(ctx context.Context, db *sql.DB) (*Archive, error) {
	a := &Archive{db: db}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.startConversation(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// startConversation requires a.mu to be held.
func (a *Archive) startConversation(ctx context.Context) error {
	res, err := a.db.ExecContext(ctx,
		`INSERT INTO conversations (public_id, started_at) VALUES (?, ?)`,
		uuid.NewString(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("conversation id: %w", err)
	}
	a.conversationID = id
	return nil
}

// AppendMessage records one transcript entry. The lock holds off a concurrent
// Rotate so the message always lands in the still-open conversation.
func (a *Archive) AppendMessage(ctx context.Context, msg models.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO archived_messages (conversation_id, role, content, attachment_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.conversationID, string(msg.Role), msg.Content, len(msg.Attachments), msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	return nil
}

// Rotate closes the current conversation and opens a new one. Called when the
// transcript is cleared.
func (a *Archive) Rotate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx,
		`UPDATE conversations SET closed_at = ? WHERE id = ?`,
		time.Now().UTC(), a.conversationID)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return a.startConversation(ctx)
}

// ConversationID exposes the active conversation row id.
func (a *Archive) ConversationID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversationID
}
