// Package capture writes raw upstream responses to disk for troubleshooting.
// Capture is best effort: callers go through Safe so a failing capture never
// reaches the request path.
package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/interfaces"
)

// timestamp renders t as YYYYMMDD_HHMMSS_micro
func timestamp(t time.Time) string {
	return t.Format("20060102_150405") + fmt.Sprintf("_%06d", t.Nanosecond()/1000)
}

// DefaultDir is used when capture.dir is empty
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "cmabridge_responses")
}

// FileStore writes each capture to <dir>/<name>_<timestamp>.json
type FileStore struct {
	dir    string
	logger arbor.ILogger
	now    func() time.Time
	mu     sync.Mutex
}

// NewFileStore creates a capture store rooted at dir (DefaultDir when empty)
func NewFileStore(dir string, logger arbor.ILogger) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{dir: dir, logger: logger, now: time.Now}
}

// Dir returns the capture directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Capture writes payload as indented JSON and returns the file path
func (s *FileStore) Capture(name string, payload interface{}) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return "", fmt.Errorf("failed to encode capture %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create capture directory: %w", err)
	}

	base := sanitizeName(name) + "_" + timestamp(s.now())
	path := filepath.Join(s.dir, base+".json")
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, os.ErrExist) {
			path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.json", base, i))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create capture file: %w", err)
		}

		_, writeErr := f.Write(buf.Bytes())
		closeErr := f.Close()
		if writeErr != nil {
			return "", fmt.Errorf("failed to write capture file: %w", writeErr)
		}
		if closeErr != nil {
			return "", fmt.Errorf("failed to write capture file: %w", closeErr)
		}
		return path, nil
	}
}

// Prune deletes captures last modified before cutoff and returns how many were removed
func (s *FileStore) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read capture directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to prune capture")
			continue
		}
		removed++
	}
	return removed, nil
}

// Cleanup removes the capture directory and everything in it
func (s *FileStore) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove capture directory: %w", err)
	}
	return nil
}

// sanitizeName keeps capture names inside the capture directory
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "response"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// NoopStore discards captures; used when capture is disabled
type NoopStore struct{}

func (NoopStore) Capture(name string, payload interface{}) (string, error) {
	return "", nil
}

var (
	_ interfaces.ResponseCapture = (*FileStore)(nil)
	_ interfaces.ResponseCapture = NoopStore{}
)
