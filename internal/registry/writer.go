package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/MY221B/bird-download/internal/species"
)

const lockRetryDelay = 200 * time.Millisecond

// Writer serialises registry updates. The mutex orders goroutines within the
// process and the flock on "<path>.lock" orders concurrent processes.
type Writer struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewWriter returns a writer for the registry at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the registry file path.
func (w *Writer) Path() string { return w.path }

// Snapshot loads the current registry without holding the lock across the
// caller's work.
func (w *Writer) Snapshot() (*Registry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Load(w.path)
}

// Update loads the registry, applies fn and saves the result while holding
// both locks. When fn returns an error nothing is written.
func (w *Writer) Update(ctx context.Context, fn func(*Registry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	ok, err := w.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire registry lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("acquire registry lock: %s is held by another process", w.lock.Path())
	}
	defer func() { _ = w.lock.Unlock() }()

	reg, err := Load(w.path)
	if err != nil {
		return err
	}
	if err := fn(reg); err != nil {
		return err
	}
	return reg.Save(w.path)
}

// Reconcile folds records into the registry file and returns the outcome.
func (w *Writer) Reconcile(ctx context.Context, records []species.Record) (Result, error) {
	var res Result
	err := w.Update(ctx, func(reg *Registry) error {
		res = Reconcile(reg, records)
		return nil
	})
	return res, err
}
