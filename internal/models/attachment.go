package models

import "time"

type AttachmentKind string

const (
	KindImage    AttachmentKind = "image"
	KindDocument AttachmentKind = "document"
)

type AttachmentStatus string

const (
	StatusPending   AttachmentStatus = "pending"
	StatusUploading AttachmentStatus = "uploading"
	StatusSuccess   AttachmentStatus = "success"
	StatusError     AttachmentStatus = "error"
)

var statusRank = map[AttachmentStatus]int{
	StatusPending:   0,
	StatusUploading: 1,
	StatusSuccess:   2,
	StatusError:     2,
}

// CanAdvance reports whether moving from s to next is a forward transition.
// Statuses never move backward.
func (s AttachmentStatus) CanAdvance(next AttachmentStatus) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Attachment is a file staged for enrichment and sending. The source bytes
// live here; the preview file on disk is owned by the attachment store, which
// releases it exactly once.
type Attachment struct {
	ID          string           `json:"id"`
	FileName    string           `json:"file_name"`
	MimeType    string           `json:"mime_type"`
	Size        int64            `json:"size"`
	Kind        AttachmentKind   `json:"kind"`
	Status      AttachmentStatus `json:"status"`
	Data        []byte           `json:"-"`
	PreviewPath string           `json:"preview_path"`
	Extracted   *BillInfo        `json:"extracted,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// View strips the binary payload for display and transcript storage.
func (a Attachment) View() AttachmentView {
	return AttachmentView{
		ID:          a.ID,
		FileName:    a.FileName,
		MimeType:    a.MimeType,
		Size:        a.Size,
		Kind:        a.Kind,
		Status:      a.Status,
		PreviewPath: a.PreviewPath,
		Extracted:   a.Extracted,
	}
}

// AttachmentView is the display-only shape kept on sent messages. It carries
// no ownership of the preview file.
type AttachmentView struct {
	ID          string           `json:"id"`
	FileName    string           `json:"file_name"`
	MimeType    string           `json:"mime_type"`
	Size        int64            `json:"size"`
	Kind        AttachmentKind   `json:"kind"`
	Status      AttachmentStatus `json:"status"`
	PreviewPath string           `json:"preview_path"`
	Extracted   *BillInfo        `json:"extracted,omitempty"`
}
