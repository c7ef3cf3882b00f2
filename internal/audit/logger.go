// Package audit delivers decision audit records to stdout, a rotating file or
// syslog without blocking the decision path.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/trading-pdp/internal/metrics"
	"github.com/authz-engine/trading-pdp/pkg/types"
)

// Output types
const (
	TypeStdout = "stdout"
	TypeFile   = "file"
	TypeSyslog = "syslog"
)

// Logger logs audit events
type Logger interface {
	// LogDecision logs the audit record of a decision
	LogDecision(ctx context.Context, decision *types.Decision)

	// LogConfigChange logs a policy configuration being installed
	LogConfigChange(ctx context.Context, change *ConfigChange)

	// Flush flushes pending logs
	Flush() error

	// Close closes logger and flushes remaining logs
	Close() error
}

// Config for audit logger
type Config struct {
	// Enabled enables audit logging
	Enabled bool

	// Output type: stdout, file, syslog
	Type string

	// For file output
	FilePath       string
	FileMaxSize    int // MB
	FileMaxAge     int // Days
	FileMaxBackups int

	// For syslog
	SyslogAddr     string
	SyslogProtocol string // tcp, udp, unix

	// Performance tuning
	BufferSize    int           // Ring buffer size (default: 1000)
	FlushInterval time.Duration // Batch interval (default: 100ms)
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Type:           TypeStdout,
		BufferSize:     1000,
		FlushInterval:  100 * time.Millisecond,
		FileMaxSize:    100,
		FileMaxAge:     30,
		FileMaxBackups: 10,
	}
}

// Validate validates the configuration and fills in tuning defaults
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Type == "" {
		return fmt.Errorf("audit type is required")
	}

	if c.Type != TypeStdout && c.Type != TypeFile && c.Type != TypeSyslog {
		return fmt.Errorf("invalid audit type: %s (must be stdout, file, or syslog)", c.Type)
	}

	if c.Type == TypeFile && c.FilePath == "" {
		return fmt.Errorf("file path is required for file output")
	}

	if c.Type == TypeSyslog && c.SyslogAddr == "" {
		return fmt.Errorf("syslog address is required for syslog output")
	}

	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = 100 * time.Millisecond
	}

	return nil
}

// Option configures a Logger
type Option func(*options)

type options struct {
	writer  Writer
	metrics metrics.Metrics
	logger  *zap.Logger
}

// WithWriter sends events to w instead of the writer named by Config.Type
func WithWriter(w Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithMetrics counts events dropped on buffer overflow
func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger reports write failures
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewLogger creates a new audit logger
func NewLogger(cfg *Config, opts ...Option) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
		*cfg = DefaultConfig()
	}

	o := options{
		metrics: metrics.NewNoOpMetrics(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if !cfg.Enabled {
		return NewNoopLogger(), nil
	}

	writer := o.writer
	if writer == nil {
		var err error
		switch cfg.Type {
		case TypeStdout:
			writer = NewStdoutWriter()
		case TypeFile:
			writer, err = NewFileWriter(cfg.FilePath, cfg.FileMaxSize, cfg.FileMaxAge, cfg.FileMaxBackups)
			if err != nil {
				return nil, fmt.Errorf("create file writer: %w", err)
			}
		case TypeSyslog:
			writer, err = NewSyslogWriter(cfg.SyslogProtocol, cfg.SyslogAddr)
			if err != nil {
				return nil, fmt.Errorf("create syslog writer: %w", err)
			}
		}
	}

	return newAsyncLogger(writer, *cfg, o.metrics.RecordAuditDropped, o.logger), nil
}

// noopLogger is a no-op logger used when audit logging is disabled
type noopLogger struct{}

// NewNoopLogger returns a Logger that discards everything
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) LogDecision(context.Context, *types.Decision)   {}
func (noopLogger) LogConfigChange(context.Context, *ConfigChange) {}
func (noopLogger) Flush() error                                   { return nil }
func (noopLogger) Close() error                                   { return nil }
