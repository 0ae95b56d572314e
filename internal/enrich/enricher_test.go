package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"srmchat/internal/cache"
	"srmchat/internal/models"
)

// fakeExtractor maps file content to a canned result and can delay or fail
// per file.
type fakeExtractor struct {
	delays map[string]time.Duration
	fail   map[string]bool
	calls  atomic.Int64
}

func (f *fakeExtractor) ExtractBill(ctx context.Context, filename string, data []byte) (*models.BillInfo, error) {
	f.calls.Add(1)
	key := string(data)
	if d, ok := f.delays[key]; ok {
		time.Sleep(d)
	}
	if f.fail[key] {
		return nil, errors.New("ocr exploded")
	}
	return &models.BillInfo{CIL: "cil-" + key}, nil
}

func pendingAttachment(i int) models.Attachment {
	return models.Attachment{
		ID:       fmt.Sprintf("att-%d", i),
		FileName: fmt.Sprintf("bill-%d.png", i),
		Status:   models.StatusPending,
		Data:     []byte(fmt.Sprintf("file-%d", i)),
	}
}

func TestEnrichPreservesPositionalOrder(t *testing.T) {
	// Later inputs finish first; output order must still match input order.
	extractor := &fakeExtractor{delays: map[string]time.Duration{
		"file-0": 40 * time.Millisecond,
		"file-1": 20 * time.Millisecond,
		"file-2": 0,
	}}
	enricher := New(extractor, nil, 0, 0, nil)

	input := []models.Attachment{pendingAttachment(0), pendingAttachment(1), pendingAttachment(2)}
	out := enricher.Enrich(context.Background(), input)

	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	for i, res := range out {
		if res.ID != input[i].ID {
			t.Fatalf("result[%d] is %s, want %s", i, res.ID, input[i].ID)
		}
		want := "cil-file-" + fmt.Sprint(i)
		if res.Extracted == nil || res.Extracted.CIL != want {
			t.Fatalf("result[%d] extracted mismatch: %#v", i, res.Extracted)
		}
		if res.Status != models.StatusSuccess {
			t.Fatalf("result[%d] status %s", i, res.Status)
		}
	}
}

func TestEnrichIsolatesFailures(t *testing.T) {
	extractor := &fakeExtractor{fail: map[string]bool{"file-1": true}}
	enricher := New(extractor, nil, 0, 0, nil)

	input := []models.Attachment{pendingAttachment(0), pendingAttachment(1), pendingAttachment(2)}
	out := enricher.Enrich(context.Background(), input)

	if out[0].Status != models.StatusSuccess || out[2].Status != models.StatusSuccess {
		t.Fatalf("siblings affected by one failure: %s / %s", out[0].Status, out[2].Status)
	}
	if out[1].Status != models.StatusError {
		t.Fatalf("failed attachment not marked error: %s", out[1].Status)
	}
	if out[1].Extracted != nil {
		t.Fatalf("failed attachment must carry no extracted data")
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	extractor := &fakeExtractor{}
	enricher := New(extractor, nil, 0, 0, nil)

	input := []models.Attachment{pendingAttachment(0)}
	_ = enricher.Enrich(context.Background(), input)

	if input[0].Status != models.StatusPending {
		t.Fatalf("input status mutated to %s", input[0].Status)
	}
	if input[0].Extracted != nil {
		t.Fatalf("input extracted data mutated")
	}
}

func TestEnrichBoundedConcurrency(t *testing.T) {
	extractor := &fakeExtractor{delays: map[string]time.Duration{
		"file-0": 10 * time.Millisecond,
		"file-1": 10 * time.Millisecond,
		"file-2": 10 * time.Millisecond,
		"file-3": 10 * time.Millisecond,
	}}
	enricher := New(extractor, nil, 0, 2, nil)

	input := []models.Attachment{
		pendingAttachment(0), pendingAttachment(1),
		pendingAttachment(2), pendingAttachment(3),
	}
	out := enricher.Enrich(context.Background(), input)
	if len(out) != 4 {
		t.Fatalf("expected 4 results")
	}
	if extractor.calls.Load() != 4 {
		t.Fatalf("expected 4 extraction calls, got %d", extractor.calls.Load())
	}
}

func TestEnrichUsesExtractionCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewWithAddr(mr.Addr())
	if err != nil {
		t.Fatalf("connect miniredis: %v", err)
	}
	defer cacheClient.Close()

	extractor := &fakeExtractor{}
	enricher := New(extractor, cacheClient, time.Minute, 0, nil)

	first := enricher.Enrich(context.Background(), []models.Attachment{pendingAttachment(0)})
	if extractor.calls.Load() != 1 {
		t.Fatalf("expected one extraction call, got %d", extractor.calls.Load())
	}
	if first[0].Status != models.StatusSuccess {
		t.Fatalf("first enrichment failed: %s", first[0].Status)
	}

	// Same bytes again: served from cache, extractor untouched.
	second := enricher.Enrich(context.Background(), []models.Attachment{pendingAttachment(0)})
	if extractor.calls.Load() != 1 {
		t.Fatalf("cache missed, extractor called %d times", extractor.calls.Load())
	}
	if second[0].Status != models.StatusSuccess || second[0].Extracted == nil || second[0].Extracted.CIL != "cil-file-0" {
		t.Fatalf("cached result mismatch: %#v", second[0].Extracted)
	}
}
