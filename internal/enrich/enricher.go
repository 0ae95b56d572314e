package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"srmchat/internal/cache"
	"srmchat/internal/logging"
	"srmchat/internal/models"
)

const DefaultCacheTTL = 24 * time.Hour

// Extractor is the remote extraction collaborator.
type Extractor interface {
	ExtractBill(ctx context.Context, filename string, data []byte) (*models.BillInfo, error)
}

// Enricher runs OCR extraction over a batch of attachments: every call is
// launched independently, all are joined before returning, and one failure
// never aborts its siblings.
type Enricher struct {
	extractor Extractor
	cache     *cache.Client // nil disables caching
	cacheTTL  time.Duration
	limit     int // max concurrent extraction calls, 0 = unbounded
	log       *logging.Logger
}

func New(extractor Extractor, cacheClient *cache.Client, cacheTTL time.Duration, limit int, log *logging.Logger) *Enricher {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Enricher{
		extractor: extractor,
		cache:     cacheClient,
		cacheTTL:  cacheTTL,
		limit:     limit,
		log:       log,
	}
}

// Enrich processes the given attachments concurrently and returns copies:
// result[i] always corresponds to input[i] regardless of completion order.
// Inputs are never mutated.
func (e *Enricher) Enrich(ctx context.Context, attachments []models.Attachment) []models.Attachment {
	out := make([]models.Attachment, len(attachments))

	var sem chan struct{}
	if e.limit > 0 {
		sem = make(chan struct{}, e.limit)
	}

	var wg sync.WaitGroup
	for i := range attachments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			out[i] = e.enrichOne(ctx, attachments[i])
		}(i)
	}
	wg.Wait()
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, att models.Attachment) models.Attachment {
	result := att

	key := cacheKey(att.Data)
	if info, ok := e.cachedBill(ctx, key); ok {
		result.Status = models.StatusSuccess
		result.Extracted = info
		return result
	}

	info, err := e.extractor.ExtractBill(ctx, att.FileName, att.Data)
	if err != nil {
		e.log.Warnw("attachment enrichment failed", "id", att.ID, "file", att.FileName, "error", err)
		result.Status = models.StatusError
		result.Extracted = nil
		return result
	}

	result.Status = models.StatusSuccess
	result.Extracted = info
	e.storeBill(ctx, key, info)
	return result
}

func (e *Enricher) cachedBill(ctx context.Context, key string) (*models.BillInfo, bool) {
	raw, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.log.Warnw("extraction cache read failed", "error", err)
		}
		return nil, false
	}
	var info models.BillInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, false
	}
	return &info, true
}

func (e *Enricher) storeBill(ctx context.Context, key string, info *models.BillInfo) {
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, string(raw), e.cacheTTL); err != nil {
		e.log.Warnw("extraction cache write failed", "error", err)
	}
}

// cacheKey derives the cache key from the attachment content, so the same
// bill uploaded twice hits the cache regardless of filename.
func cacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "srmchat:extract:" + hex.EncodeToString(sum[:])
}
