package attachment

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PreviewHandle owns one preview file on disk. Release is safe to call from
// any retirement path; the underlying removal happens at most once.
type PreviewHandle struct {
	path    string
	release sync.Once
	err     error
}

// newPreviewHandle writes the preview bytes and acquires the handle.
func newPreviewHandle(dir, name string, data []byte) (*PreviewHandle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write preview file: %w", err)
	}
	return &PreviewHandle{path: path}, nil
}

// Path returns the preview file location.
func (h *PreviewHandle) Path() string {
	return h.path
}

// Release removes the preview file. Subsequent calls are no-ops.
func (h *PreviewHandle) Release() error {
	h.release.Do(func() {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			h.err = err
		}
	})
	return h.err
}
