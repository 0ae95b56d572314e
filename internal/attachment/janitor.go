package attachment

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultPreviewTTL           = time.Hour
	DefaultPreviewSweepInterval = 15 * time.Minute
)

// StartJanitor sweeps the preview directory, removing files older than ttl
// that no longer belong to a staged attachment. A crash between stage and
// release can strand preview files; the janitor reclaims them.
func (s *Store) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultPreviewSweepInterval
	}
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	go s.sweepLoop(ctx, interval, ttl)
}

func (s *Store) sweepLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepOrphans(ttl); err != nil {
				s.log.Warnw("preview sweep failed", "error", err)
			}
		}
	}
}

func (s *Store) sweepOrphans(ttl time.Duration) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	live := make(map[string]struct{})
	s.mu.Lock()
	for _, it := range s.items {
		live[it.att.PreviewPath] = struct{}{}
	}
	s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if _, ok := live[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warnw("remove orphan preview failed", "path", path, "error", err)
		}
	}
	return nil
}
