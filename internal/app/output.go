package app

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// JSONLWriter writes one JSON document per line. It is safe for concurrent
// use.
type JSONLWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// OpenJSONL appends to path, creating parent directories. "-" or "" is
// stdout.
func OpenJSONL(path string) (*JSONLWriter, error) {
	if path == "" || path == "-" {
		return NewJSONLWriter(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := NewJSONLWriter(f)
	w.closer = f
	return w, nil
}

func (w *JSONLWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func (w *JSONLWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
