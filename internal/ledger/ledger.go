// Package ledger implements the durable failure ledger: a plain text
// file recording the object keys whose last processing attempt did not
// complete. The ledger is the sole source of truth for what still needs
// retrying; a missing file means no failures.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Ledger records failed object keys for later retry.
type Ledger interface {
	// Append adds one key. Safe for concurrent use; appends never
	// interleave bytes.
	Append(key string) error

	// ReadAll returns every recorded key in append order. A missing
	// ledger file yields an empty slice, not an error.
	ReadAll() ([]string, error)

	// Rewrite replaces the entire ledger content with exactly keys.
	Rewrite(keys []string) error

	// Size returns the current entry count.
	Size() (int, error)
}

// FileLedger is the file-backed ledger, one newline-terminated key per
// line. All mutations are serialized by an internal mutex; Rewrite goes
// through a temp file and rename so readers never observe a partial file.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

// NewFileLedger creates a ledger at path. The parent directory must
// exist; the file itself is created lazily on first Append.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Path returns the ledger file location.
func (l *FileLedger) Path() string {
	return l.path
}

// Append writes key as one line. The key and newline go out in a single
// write call on a file opened in append mode, so concurrent appends from
// multiple workers cannot corrupt each other.
func (l *FileLedger) Append(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("append to ledger %s: %w", l.path, err)
	}
	return nil
}

// ReadAll returns every recorded key in order.
func (l *FileLedger) ReadAll() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAllLocked()
}

func (l *FileLedger) readAllLocked() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}

	var keys []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			keys = append(keys, line)
		}
	}
	return keys, nil
}

// Rewrite atomically replaces the ledger with exactly keys. Used by the
// retry driver to compact the ledger down to residual failures.
func (l *FileLedger) Rewrite(keys []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("\n")
	}

	tempPath := l.path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write ledger temp file: %w", err)
	}

	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename ledger file: %w", err)
	}
	return nil
}

// Size returns the number of recorded keys.
func (l *FileLedger) Size() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys, err := l.readAllLocked()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// EnsureParent creates the ledger's parent directory.
func (l *FileLedger) EnsureParent() error {
	return os.MkdirAll(filepath.Dir(l.path), 0755)
}

var _ Ledger = (*FileLedger)(nil)
