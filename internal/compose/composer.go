package compose

import (
	"encoding/json"
	"strings"
	"time"

	"srmchat/internal/models"
)

// AppendixHeader delimits system-supplied attachment context from the user's
// own words in an outgoing message. The version suffix is part of the
// contract with the conversational service.
const AppendixHeader = "[attachment-context v1]"

// Outgoing is the result of composing one send: the enriched request payload
// and the message shown locally.
type Outgoing struct {
	RequestContent string
	RequestHistory []models.HistoryEntry
	DisplayMessage models.Message
}

// BuildOutgoing assembles the request content, the reduced history and the
// display message for one send. Pure: inputs are not mutated.
func BuildOutgoing(userText string, enriched []models.Attachment, transcriptSoFar []models.Message) Outgoing {
	history := make([]models.HistoryEntry, 0, len(transcriptSoFar))
	for _, msg := range transcriptSoFar {
		history = append(history, models.HistoryEntry{Role: msg.Role, Content: msg.Content})
	}

	views := make([]models.AttachmentView, 0, len(enriched))
	for _, att := range enriched {
		views = append(views, att.View())
	}

	display := models.Message{
		Role:      models.RoleUser,
		Content:   userText,
		CreatedAt: time.Now(),
	}
	if len(views) > 0 {
		display.Attachments = views
	}

	return Outgoing{
		RequestContent: withAppendix(userText, enriched),
		RequestHistory: history,
		DisplayMessage: display,
	}
}

// withAppendix folds extracted attachment data into the request content. The
// appendix is emitted only when at least one attachment produced data, and is
// never part of the display message.
func withAppendix(userText string, enriched []models.Attachment) string {
	var entries []string
	for _, att := range enriched {
		if att.Extracted == nil {
			continue
		}
		data, err := json.Marshal(att.Extracted)
		if err != nil {
			continue
		}
		entries = append(entries, string(data))
	}
	if len(entries) == 0 {
		return userText
	}

	var b strings.Builder
	b.WriteString(userText)
	b.WriteString("\n\n")
	b.WriteString(AppendixHeader)
	for _, entry := range entries {
		b.WriteString("\n")
		b.WriteString(entry)
	}
	return b.String()
}
