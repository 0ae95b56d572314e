package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"srmchat/internal/attachment"
	"srmchat/internal/compose"
	"srmchat/internal/i18n"
	"srmchat/internal/logging"
	"srmchat/internal/models"
	"srmchat/internal/prefs"
	"srmchat/internal/storage"
	"srmchat/internal/transcript"
)

// ErrSendInFlight is returned when a send is attempted while another one is
// still running. Concurrent sends are rejected, not queued.
var ErrSendInFlight = errors.New("send already in flight")

// Enricher runs the OCR extraction fan-out over pending attachments.
type Enricher interface {
	Enrich(ctx context.Context, attachments []models.Attachment) []models.Attachment
}

// Dialer calls the remote conversational endpoint.
type Dialer interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

// LanguageSource supplies the active language for outgoing requests.
type LanguageSource interface {
	Language(ctx context.Context) (string, error)
}

// Snapshot is the read-only projection of engine state handed to observers.
type Snapshot struct {
	Messages    []models.Message        `json:"messages"`
	Attachments []models.AttachmentView `json:"attachments"`
	Sending     bool                    `json:"sending"`
	Uploading   bool                    `json:"uploading"`
	Banner      string                  `json:"banner,omitempty"`
}

// Engine is the send orchestrator: it owns the transcript and the active
// attachment set, and runs the staged send pipeline. All state mutation flows
// through it.
type Engine struct {
	mu        sync.Mutex
	sending   bool
	uploading bool
	banner    string

	attachments *attachment.Store
	transcript  *transcript.Transcript
	enricher    Enricher
	dialer      Dialer
	language    LanguageSource
	archive     *storage.Archive // nil disables archiving
	log         *logging.Logger

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// Options carries the optional collaborators.
type Options struct {
	Language LanguageSource
	Archive  *storage.Archive
	Logger   *logging.Logger
}

func NewEngine(store *attachment.Store, enricher Enricher, dialer Dialer, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{
		attachments: store,
		transcript:  transcript.New(),
		enricher:    enricher,
		dialer:      dialer,
		language:    opts.Language,
		archive:     opts.Archive,
		log:         log,
		subs:        make(map[int]func(Snapshot)),
	}
}

// Stage adds a file to the active attachment set.
func (e *Engine) Stage(filename, mimeType string, data []byte) (models.AttachmentView, error) {
	att, err := e.attachments.Stage(filename, mimeType, data)
	if err != nil {
		return models.AttachmentView{}, err
	}
	e.notify()
	return att.View(), nil
}

// Unstage removes a staged attachment by id. Unknown ids are ignored.
func (e *Engine) Unstage(id string) {
	e.attachments.Unstage(id)
	e.notify()
}

// Send runs one send through the full pipeline. Empty input with no staged
// attachments is a silent no-op. A second send while one is in flight
// returns ErrSendInFlight.
func (e *Engine) Send(ctx context.Context, userText string) error {
	if strings.TrimSpace(userText) == "" && e.attachments.Len() == 0 {
		return nil
	}

	e.mu.Lock()
	if e.sending {
		e.mu.Unlock()
		return ErrSendInFlight
	}
	e.sending = true
	e.banner = ""
	e.mu.Unlock()
	e.notify()

	defer func() {
		e.mu.Lock()
		e.sending = false
		e.uploading = false
		e.mu.Unlock()
		e.notify()
	}()

	// Enrich pending attachments: fan out, join all, merge positionally.
	// The send owns exactly this batch; anything staged while it runs
	// stays behind for the next one.
	batch := e.attachments.DrainPending()
	batchIDs := make([]string, len(batch))
	for i, att := range batch {
		batchIDs[i] = att.ID
	}
	if len(batch) > 0 {
		e.attachments.MarkUploading(batchIDs)
		e.setUploading(true)

		results := e.enricher.Enrich(ctx, batch)
		e.attachments.MergeResults(results)
		e.setUploading(false)
	}

	enriched := e.attachments.Select(batchIDs)
	out := compose.BuildOutgoing(userText, enriched, e.transcript.Snapshot())

	// The user's message lands in the transcript before the chat call goes
	// out, so a failed reply never hides that it was sent. Clearing the
	// batch releases its preview handles.
	e.appendMessage(ctx, out.DisplayMessage)
	e.attachments.ClearIDs(batchIDs)
	e.notify()

	lang := e.activeLanguage(ctx)
	resp, err := e.dialer.Chat(ctx, models.ChatRequest{
		Message:  out.RequestContent,
		History:  out.RequestHistory,
		Language: lang,
	})
	if err != nil {
		e.log.Warnw("chat dispatch failed", "error", err)
		e.mu.Lock()
		e.banner = i18n.For(lang).ChatFailure
		e.mu.Unlock()
		return nil
	}

	e.appendMessage(ctx, models.Message{
		Role:      models.RoleAssistant,
		Content:   resp.Response,
		CreatedAt: time.Now(),
	})
	return nil
}

// Reset clears the transcript, the active attachment set and the error
// banner, and rotates the conversation archive.
func (e *Engine) Reset(ctx context.Context) {
	e.transcript.Clear()
	e.attachments.Clear()
	e.mu.Lock()
	e.banner = ""
	e.mu.Unlock()
	if e.archive != nil {
		if err := e.archive.Rotate(ctx); err != nil {
			e.log.Warnw("archive rotate failed", "error", err)
		}
	}
	e.notify()
}

// ClearError dismisses the error banner.
func (e *Engine) ClearError() {
	e.mu.Lock()
	e.banner = ""
	e.mu.Unlock()
	e.notify()
}

// Snapshot returns the current read-only projection.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	sending, uploading, banner := e.sending, e.uploading, e.banner
	e.mu.Unlock()
	return Snapshot{
		Messages:    e.transcript.Snapshot(),
		Attachments: e.attachments.Views(),
		Sending:     sending,
		Uploading:   uploading,
		Banner:      banner,
	}
}

// Subscribe registers an observer invoked after every state change. The
// returned func unsubscribes.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) appendMessage(ctx context.Context, msg models.Message) {
	e.transcript.Append(msg)
	if e.archive != nil {
		if err := e.archive.AppendMessage(ctx, msg); err != nil {
			e.log.Warnw("archive append failed", "error", err)
		}
	}
}

func (e *Engine) activeLanguage(ctx context.Context) string {
	if e.language == nil {
		return prefs.LanguageArabic
	}
	lang, err := e.language.Language(ctx)
	if err != nil {
		e.log.Warnw("read language failed", "error", err)
		return prefs.LanguageArabic
	}
	return lang
}

func (e *Engine) setUploading(v bool) {
	e.mu.Lock()
	e.uploading = v
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) notify() {
	e.subMu.Lock()
	if len(e.subs) == 0 {
		e.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	snap := e.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}
