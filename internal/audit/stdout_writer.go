package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// streamWriter writes audit events to a stream as JSON lines
type streamWriter struct {
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewStdoutWriter creates a new stdout writer
func NewStdoutWriter() Writer {
	return NewStreamWriter(os.Stdout)
}

// NewStreamWriter creates a writer that encodes one JSON object per line to w
func NewStreamWriter(w io.Writer) Writer {
	return &streamWriter{
		encoder: json.NewEncoder(w),
	}
}

// Write encodes an entry as one JSON line
func (w *streamWriter) Write(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(entry)
}

// Close closes the writer (no-op for streams)
func (w *streamWriter) Close() error {
	return nil
}
