package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation transcript. Once appended it is
// never modified.
type Message struct {
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Attachments []AttachmentView `json:"attachments,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// HistoryEntry is the reduced {role, content} pair sent to the conversational
// endpoint. Attachment payloads never travel with the history.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
