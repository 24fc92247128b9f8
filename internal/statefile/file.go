package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a JSON document on disk owned by exactly one store.
//
// Reads go straight to disk and never block on writers; the atomic rename in
// writeAtomic guarantees a reader sees either the previous or the next full
// document. Mutations are serialized by mu and always re-read the current
// document before computing the new one.
type File[T any] struct {
	mu   sync.Mutex
	path string
	zero func() T
}

// New creates a File at path. zero builds the value returned when no
// document exists yet.
func New[T any](path string, zero func() T) *File[T] {
	if zero == nil {
		zero = func() T {
			var v T
			return v
		}
	}
	return &File[T]{path: path, zero: zero}
}

// Path returns the backing file path
func (f *File[T]) Path() string {
	return f.path
}

// Load returns the persisted document, or zero() if the file does not exist.
func (f *File[T]) Load() (T, error) {
	return f.read()
}

// Store overwrites the document with v.
func (f *File[T]) Store(v T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(v)
}

// Update applies fn to the current document and persists the result. The
// whole read-modify-write runs under the file's lock.
func (f *File[T]) Update(fn func(cur T) (T, error)) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.read()
	if err != nil {
		return cur, err
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if err := f.write(next); err != nil {
		return cur, err
	}
	return next, nil
}

func (f *File[T]) read() (T, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f.zero(), nil
		}
		return f.zero(), fmt.Errorf("read %s: %w", f.path, err)
	}
	v := f.zero()
	if err := json.Unmarshal(data, &v); err != nil {
		return f.zero(), fmt.Errorf("decode %s: %w", f.path, err)
	}
	return v, nil
}

func (f *File[T]) write(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if err := writeAtomic(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

// writeAtomic writes data to path via tmp file + fsync + rename, then fsyncs
// the parent directory so the rename itself is durable.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	// best-effort
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
