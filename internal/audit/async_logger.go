package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/trading-pdp/pkg/types"
)

// asyncLogger implements asynchronous audit logging with ring buffer
type asyncLogger struct {
	writer Writer
	onDrop func()
	logger *zap.Logger

	// Ring buffer
	buffer []Entry
	size   int
	head   int
	count  int
	closed bool
	mu     sync.Mutex

	// flushMu keeps batches in enqueue order when Flush races the ticker
	flushMu sync.Mutex

	// Background writer
	flushCh   chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	interval  time.Duration
}

// newAsyncLogger creates a new async logger
func newAsyncLogger(writer Writer, cfg Config, onDrop func(), logger *zap.Logger) *asyncLogger {
	l := &asyncLogger{
		writer:    writer,
		onDrop:    onDrop,
		logger:    logger,
		buffer:    make([]Entry, cfg.BufferSize),
		size:      cfg.BufferSize,
		flushCh:   make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		interval:  cfg.FlushInterval,
	}

	go l.run()

	return l
}

// LogDecision logs the audit record of a decision
func (l *asyncLogger) LogDecision(ctx context.Context, decision *types.Decision) {
	if decision == nil {
		return
	}

	l.enqueue(&DecisionEvent{
		Timestamp:    time.Now(),
		EventType:    EventTypeDecision,
		EventID:      generateEventID(),
		RequestID:    RequestIDFromContext(ctx),
		Transport:    transportFromContext(ctx),
		Code:         string(decision.Code),
		RateLimitKey: decision.RateLimitKey,
		Record:       decision.Audit,
	})
}

// LogConfigChange logs a policy configuration being installed
func (l *asyncLogger) LogConfigChange(ctx context.Context, change *ConfigChange) {
	if change == nil {
		return
	}

	l.enqueue(&ConfigChangeEvent{
		Timestamp:           time.Now(),
		EventType:           EventTypeConfigChange,
		EventID:             generateEventID(),
		Source:              change.Source,
		PreviousFingerprint: change.PreviousFingerprint,
		Fingerprint:         change.Fingerprint,
	})
}

// enqueue adds an event to the ring buffer without blocking. When the buffer
// is full the oldest event is dropped.
func (l *asyncLogger) enqueue(event Entry) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.drop()
		return
	}

	dropped := false
	if l.count == l.size {
		l.head = (l.head + 1) % l.size
		l.count--
		dropped = true
	}
	l.buffer[(l.head+l.count)%l.size] = event
	l.count++
	l.mu.Unlock()

	if dropped {
		l.drop()
	}

	select {
	case l.flushCh <- struct{}{}:
	default:
	}
}

func (l *asyncLogger) drop() {
	if l.onDrop != nil {
		l.onDrop()
	}
}

// run is the background goroutine that flushes events periodically
func (l *asyncLogger) run() {
	defer close(l.stoppedCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.flushAndReport()
		case <-l.flushCh:
			l.flushAndReport()
		case <-l.doneCh:
			l.flushAndReport()
			return
		}
	}
}

func (l *asyncLogger) flushAndReport() {
	if err := l.flush(); err != nil {
		l.logger.Warn("Audit write failed", zap.Error(err))
	}
}

// Flush writes pending events
func (l *asyncLogger) Flush() error {
	return l.flush()
}

// flush writes all buffered events to the writer
func (l *asyncLogger) flush() error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	events := l.drain()
	l.mu.Unlock()

	var lastErr error
	for _, event := range events {
		if err := l.writer.Write(event); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// drain copies events out of the ring buffer and clears it
func (l *asyncLogger) drain() []Entry {
	if l.count == 0 {
		return nil
	}

	events := make([]Entry, 0, l.count)
	for i := 0; i < l.count; i++ {
		idx := (l.head + i) % l.size
		events = append(events, l.buffer[idx])
		l.buffer[idx] = nil
	}
	l.head = 0
	l.count = 0

	return events
}

// Close stops the background writer after a final flush and closes the
// underlying writer. Events logged after Close are dropped.
func (l *asyncLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		close(l.doneCh)
		<-l.stoppedCh
		err = l.writer.Close()
	})
	return err
}
