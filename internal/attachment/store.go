package attachment

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"srmchat/internal/logging"
	"srmchat/internal/models"
)

// Store holds the attachments staged but not yet folded into a sent message.
// It is the single owner of every preview handle: a handle is released on
// explicit removal or on Clear, never twice.
type Store struct {
	mu    sync.Mutex
	dir   string
	items []*item
	log   *logging.Logger
}

type item struct {
	att     models.Attachment
	preview *PreviewHandle
}

func NewStore(previewDir string, log *logging.Logger) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	return &Store{dir: previewDir, log: log}
}

// Stage creates a PENDING attachment from the supplied file and acquires its
// preview handle. Validation of what the user may upload happens at the edge.
func (s *Store) Stage(filename, mimeType string, data []byte) (models.Attachment, error) {
	id := uuid.NewString()
	preview, err := newPreviewHandle(s.dir, previewName(id, filename), data)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("stage attachment: %w", err)
	}

	att := models.Attachment{
		ID:          id,
		FileName:    filepath.Base(filename),
		MimeType:    mimeType,
		Size:        int64(len(data)),
		Kind:        kindOf(mimeType),
		Status:      models.StatusPending,
		Data:        data,
		PreviewPath: preview.Path(),
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.items = append(s.items, &item{att: att, preview: preview})
	s.mu.Unlock()
	return att, nil
}

// Unstage removes the attachment with the given id and releases its preview.
// Absent ids are a no-op, not an error.
func (s *Store) Unstage(id string) {
	var preview *PreviewHandle

	s.mu.Lock()
	for i, it := range s.items {
		if it.att.ID == id {
			preview = it.preview
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if preview != nil {
		if err := preview.Release(); err != nil {
			s.log.Warnw("release preview failed", "id", id, "error", err)
		}
	}
}

// DrainPending returns copies of the attachments still PENDING, in staging
// order. Statuses are not touched here.
func (s *Store) DrainPending() []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Attachment
	for _, it := range s.items {
		if it.att.Status == models.StatusPending {
			out = append(out, it.att)
		}
	}
	return out
}

// MarkUploading advances the listed attachments to UPLOADING.
func (s *Store) MarkUploading(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	for _, it := range s.items {
		if _, ok := set[it.att.ID]; ok && it.att.Status.CanAdvance(models.StatusUploading) {
			it.att.Status = models.StatusUploading
		}
	}
	s.mu.Unlock()
}

// MergeResults folds enrichment outcomes back into the active set by id.
// Transitions only ever move a status forward.
func (s *Store) MergeResults(results []models.Attachment) {
	byID := make(map[string]models.Attachment, len(results))
	for _, res := range results {
		byID[res.ID] = res
	}
	s.mu.Lock()
	for _, it := range s.items {
		res, ok := byID[it.att.ID]
		if !ok {
			continue
		}
		if it.att.Status.CanAdvance(res.Status) {
			it.att.Status = res.Status
			it.att.Extracted = res.Extracted
		}
	}
	s.mu.Unlock()
}

// Active returns copies of all staged attachments in order.
func (s *Store) Active() []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Attachment, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.att)
	}
	return out
}

// Select returns copies of the attachments with the given ids, in staging
// order. Unknown ids are skipped.
func (s *Store) Select(ids []string) []models.Attachment {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Attachment
	for _, it := range s.items {
		if _, ok := set[it.att.ID]; ok {
			out = append(out, it.att)
		}
	}
	return out
}

// Views returns the display projection of the active set.
func (s *Store) Views() []models.AttachmentView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AttachmentView, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.att.View())
	}
	return out
}

// Len reports the active set size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ClearIDs removes only the listed attachments, releasing their previews.
// Anything staged after the caller took its view of the set is left alone.
func (s *Store) ClearIDs(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	var retired []*item
	s.mu.Lock()
	kept := s.items[:0]
	for _, it := range s.items {
		if _, ok := set[it.att.ID]; ok {
			retired = append(retired, it)
		} else {
			kept = append(kept, it)
		}
	}
	s.items = kept
	s.mu.Unlock()

	for _, it := range retired {
		if err := it.preview.Release(); err != nil {
			s.log.Warnw("release preview failed", "id", it.att.ID, "error", err)
		}
	}
}

// Clear empties the active set, releasing every held preview. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	retired := s.items
	s.items = nil
	s.mu.Unlock()

	for _, it := range retired {
		if err := it.preview.Release(); err != nil {
			s.log.Warnw("release preview failed", "id", it.att.ID, "error", err)
		}
	}
}

func kindOf(mimeType string) models.AttachmentKind {
	if strings.HasPrefix(mimeType, "image/") {
		return models.KindImage
	}
	return models.KindDocument
}

func previewName(id, filename string) string {
	ext := filepath.Ext(filename)
	return id + ext
}
