package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// fileWriter writes audit events to a file with rotation
type fileWriter struct {
	logger  *lumberjack.Logger
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewFileWriter creates a new file writer with log rotation
func NewFileWriter(filename string, maxSizeMB, maxAgeDays, maxBackups int) (Writer, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	logger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxAge:     maxAgeDays,
		MaxBackups: maxBackups,
		LocalTime:  true,
		Compress:   true,
	}

	w := &fileWriter{
		logger:  logger,
		encoder: json.NewEncoder(logger),
	}

	if err := w.Write(systemEvent(EventTypeSystemStartup, "Audit logging started")); err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("write startup event: %w", err)
	}

	return w, nil
}

// Write appends an entry to the file as one JSON line
func (w *fileWriter) Write(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(entry)
}

// Close writes a shutdown marker and closes the file
func (w *fileWriter) Close() error {
	_ = w.Write(systemEvent(EventTypeSystemShutdown, "Audit logging stopped"))

	return w.logger.Close()
}

func systemEvent(eventType EventType, message string) *Event {
	return &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		EventID:   generateEventID(),
		Data: map[string]interface{}{
			"message": message,
		},
	}
}
