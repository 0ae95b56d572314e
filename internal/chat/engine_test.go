package chat

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"srmchat/internal/attachment"
	"srmchat/internal/compose"
	"srmchat/internal/models"
)

type fakeEnricher struct {
	fail map[string]bool // filename -> force failure
}

func (f *fakeEnricher) Enrich(ctx context.Context, atts []models.Attachment) []models.Attachment {
	out := make([]models.Attachment, len(atts))
	for i, att := range atts {
		if f.fail[att.FileName] {
			att.Status = models.StatusError
			att.Extracted = nil
		} else {
			att.Status = models.StatusSuccess
			att.Extracted = &models.BillInfo{CIL: "cil-" + att.FileName}
		}
		out[i] = att
	}
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	requests []models.ChatRequest
	reply    string
	err      error
	block    chan struct{} // when set, Chat waits until closed
}

func (f *fakeDialer) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.ChatResponse{Response: f.reply}, nil
}

func (f *fakeDialer) lastRequest(t *testing.T) models.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no chat request captured")
	}
	return f.requests[len(f.requests)-1]
}

type fixedLanguage string

func (l fixedLanguage) Language(ctx context.Context) (string, error) {
	return string(l), nil
}

func newTestEngine(t *testing.T, dialer Dialer) (*Engine, *attachment.Store) {
	t.Helper()
	store := attachment.NewStore(t.TempDir(), nil)
	return NewEngine(store, &fakeEnricher{}, dialer, Options{}), store
}

func TestSendEmptyInputIsNoOp(t *testing.T) {
	dialer := &fakeDialer{reply: "hi"}
	engine, _ := newTestEngine(t, dialer)

	if err := engine.Send(context.Background(), "   "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(engine.Snapshot().Messages); n != 0 {
		t.Fatalf("transcript length = %d, want 0", n)
	}
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	if len(dialer.requests) != 0 {
		t.Fatal("dialer called for empty input")
	}
}

func TestSendAppendsUserThenAssistant(t *testing.T) {
	dialer := &fakeDialer{reply: "here to help"}
	engine, _ := newTestEngine(t, dialer)

	if err := engine.Send(context.Background(), "my bill is late"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := engine.Snapshot().Messages
	if len(msgs) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[0].Content != "my bill is late" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleAssistant || msgs[1].Content != "here to help" {
		t.Errorf("unexpected assistant message: %+v", msgs[1])
	}
}

func TestSendHistoryExcludesCurrentMessage(t *testing.T) {
	dialer := &fakeDialer{reply: "ok"}
	engine, _ := newTestEngine(t, dialer)

	if err := engine.Send(context.Background(), "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := engine.Send(context.Background(), "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := dialer.lastRequest(t)
	if req.Message != "second" {
		t.Fatalf("request message = %q", req.Message)
	}
	if len(req.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(req.History))
	}
	for _, entry := range req.History {
		if entry.Content == "second" {
			t.Fatal("history includes the current message")
		}
	}
}

func TestSendDispatchFailureKeepsUserMessage(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("boom")}
	engine, _ := newTestEngine(t, dialer)

	if err := engine.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("dispatch failure should be absorbed, got %v", err)
	}

	snap := engine.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Role != models.RoleUser {
		t.Fatalf("unexpected transcript: %+v", snap.Messages)
	}
	if snap.Banner != "عذراً، حدث خطأ ما. يرجى المحاولة مرة أخرى." {
		t.Fatalf("unexpected banner: %q", snap.Banner)
	}
	if snap.Sending {
		t.Fatal("still sending after failure")
	}

	engine.ClearError()
	if b := engine.Snapshot().Banner; b != "" {
		t.Fatalf("banner after dismiss = %q", b)
	}
}

func TestSendFrenchBanner(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("boom")}
	store := attachment.NewStore(t.TempDir(), nil)
	engine := NewEngine(store, &fakeEnricher{}, dialer, Options{Language: fixedLanguage("fr")})

	if err := engine.Send(context.Background(), "bonjour"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b := engine.Snapshot().Banner; b != "Désolé, une erreur s'est produite. Veuillez réessayer." {
		t.Fatalf("unexpected banner: %q", b)
	}
	if req := dialer.lastRequest(t); req.Language != "fr" {
		t.Fatalf("request language = %q", req.Language)
	}
}

func TestSendClearsAttachmentsAndPreviews(t *testing.T) {
	dialer := &fakeDialer{reply: "ok"}
	engine, store := newTestEngine(t, dialer)

	view, err := engine.Stage("bill.png", "image/png", []byte("img"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	previews := store.Active()
	if len(previews) != 1 {
		t.Fatalf("active attachments = %d, want 1", len(previews))
	}
	path := previews[0].PreviewPath

	if err := engine.Send(context.Background(), "see attached"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := store.Len(); n != 0 {
		t.Fatalf("attachment set size after send = %d, want 0", n)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("preview file still present: %v", err)
	}

	msgs := engine.Snapshot().Messages
	if len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].ID != view.ID {
		t.Fatalf("sent message missing attachment view: %+v", msgs[0])
	}
}

func TestSendAppendixOnlyInRequest(t *testing.T) {
	dialer := &fakeDialer{reply: "ok"}
	engine, _ := newTestEngine(t, dialer)

	if _, err := engine.Stage("bill.png", "image/png", []byte("img")); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := engine.Send(context.Background(), "how much do I owe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := dialer.lastRequest(t)
	if !strings.Contains(req.Message, compose.AppendixHeader) {
		t.Fatalf("request content missing appendix: %q", req.Message)
	}
	if !strings.Contains(req.Message, `"cil":"cil-bill.png"`) {
		t.Fatalf("request content missing extracted data: %q", req.Message)
	}

	display := engine.Snapshot().Messages[0]
	if display.Content != "how much do I owe" {
		t.Fatalf("display content = %q", display.Content)
	}
}

func TestSendPartialEnrichmentFailureStillSends(t *testing.T) {
	dialer := &fakeDialer{reply: "ok"}
	store := attachment.NewStore(t.TempDir(), nil)
	enricher := &fakeEnricher{fail: map[string]bool{"blurry.png": true}}
	engine := NewEngine(store, enricher, dialer, Options{})

	if _, err := engine.Stage("bill.png", "image/png", []byte("a")); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := engine.Stage("blurry.png", "image/png", []byte("b")); err != nil {
		t.Fatalf("stage: %v", err)
	}

	if err := engine.Send(context.Background(), "two files"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := dialer.lastRequest(t)
	if !strings.Contains(req.Message, `"cil":"cil-bill.png"`) {
		t.Fatalf("successful extraction missing from request: %q", req.Message)
	}
	if strings.Contains(req.Message, "blurry") {
		t.Fatalf("failed attachment leaked into request: %q", req.Message)
	}

	views := engine.Snapshot().Messages[0].Attachments
	if len(views) != 2 {
		t.Fatalf("attachment views = %d, want 2", len(views))
	}
	if views[0].Status != models.StatusSuccess || views[1].Status != models.StatusError {
		t.Fatalf("unexpected statuses: %v / %v", views[0].Status, views[1].Status)
	}
}

func TestSendRejectsConcurrentSend(t *testing.T) {
	block := make(chan struct{})
	dialer := &fakeDialer{reply: "ok", block: block}
	engine, _ := newTestEngine(t, dialer)

	done := make(chan error, 1)
	go func() {
		done <- engine.Send(context.Background(), "first")
	}()

	// Wait for the first send to reach the dialer.
	for {
		dialer.mu.Lock()
		n := len(dialer.requests)
		dialer.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := engine.Send(context.Background(), "second"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	if err := engine.Send(context.Background(), "third"); err != nil {
		t.Fatalf("send after completion rejected: %v", err)
	}
}

// stagingEnricher stages one extra attachment into the engine while an
// enrichment pass is running, mimicking a user adding a file mid-send.
type stagingEnricher struct {
	fakeEnricher
	engine *Engine
	once   sync.Once
	late   models.AttachmentView
	err    error
}

func (s *stagingEnricher) Enrich(ctx context.Context, atts []models.Attachment) []models.Attachment {
	s.once.Do(func() {
		s.late, s.err = s.engine.Stage("late.png", "image/png", []byte("late"))
	})
	return s.fakeEnricher.Enrich(ctx, atts)
}

func TestAttachmentStagedDuringSendBecomesNextBatch(t *testing.T) {
	dialer := &fakeDialer{reply: "ok"}
	store := attachment.NewStore(t.TempDir(), nil)
	enricher := &stagingEnricher{}
	engine := NewEngine(store, enricher, dialer, Options{})
	enricher.engine = engine

	if _, err := engine.Stage("bill.png", "image/png", []byte("a")); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := engine.Send(context.Background(), "first bill"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if enricher.err != nil {
		t.Fatalf("mid-send stage: %v", enricher.err)
	}

	// The late attachment joins neither the sent message nor the clear; it
	// waits as the next batch with its preview intact.
	active := store.Active()
	if len(active) != 1 || active[0].ID != enricher.late.ID {
		t.Fatalf("late-staged attachment lost: %#v", active)
	}
	if active[0].Status != models.StatusPending {
		t.Fatalf("late-staged status = %s, want pending", active[0].Status)
	}
	if _, err := os.Stat(active[0].PreviewPath); err != nil {
		t.Fatalf("late-staged preview released: %v", err)
	}

	sent := engine.Snapshot().Messages[0].Attachments
	if len(sent) != 1 || sent[0].FileName != "bill.png" {
		t.Fatalf("sent message attachments wrong: %#v", sent)
	}

	// The surviving attachment rides out on the following send.
	if err := engine.Send(context.Background(), "and this one"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("attachment set size after second send = %d, want 0", store.Len())
	}
}

func TestResetClearsEverything(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("boom")}
	engine, store := newTestEngine(t, dialer)

	if err := engine.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Stage("bill.png", "image/png", []byte("img")); err != nil {
		t.Fatalf("stage: %v", err)
	}

	engine.Reset(context.Background())

	snap := engine.Snapshot()
	if len(snap.Messages) != 0 || len(snap.Attachments) != 0 || snap.Banner != "" {
		t.Fatalf("state survived reset: %+v", snap)
	}
	if store.Len() != 0 {
		t.Fatal("attachment store not cleared")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	dialer := &fakeDialer{reply: "ok"}
	engine, _ := newTestEngine(t, dialer)

	var mu sync.Mutex
	var count int
	unsubscribe := engine.Subscribe(func(Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	if err := engine.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mu.Lock()
	seen := count
	mu.Unlock()
	if seen == 0 {
		t.Fatal("observer never notified")
	}

	unsubscribe()
	engine.ClearError()
	mu.Lock()
	defer mu.Unlock()
	if count != seen {
		t.Fatalf("observer notified after unsubscribe: %d -> %d", seen, count)
	}
}
