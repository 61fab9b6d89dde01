package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// WAL is an append-only audit trail of applied batches, one JSON line each.
// It is informational: Pebble remains the source of truth.
type WAL interface {
	Append(v any) error
}

type NopWAL struct{}

func NewNopWAL() *NopWAL            { return &NopWAL{} }
func (w *NopWAL) Append(_ any) error { return nil }

type FileWAL struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f, enc: json.NewEncoder(f)}, nil
}

func (w *FileWAL) Append(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	return nil
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

var _ WAL = (*NopWAL)(nil)
var _ WAL = (*FileWAL)(nil)
