package audit

import (
	"encoding/json"
	"fmt"
	"log/syslog"
	"sync"
)

// SyslogTag identifies the PDP in syslog messages
const SyslogTag = "trading-pdp"

// syslogWriter sends each entry as one JSON syslog message on the local0
// facility, at a priority taken from SeverityOf
type syslogWriter struct {
	writer *syslog.Writer
	mu     sync.Mutex
}

// NewSyslogWriter dials a syslog daemon. protocol is tcp, udp or unix and
// defaults to tcp.
func NewSyslogWriter(protocol, address string) (Writer, error) {
	if protocol == "" {
		protocol = "tcp"
	}

	writer, err := syslog.Dial(protocol, address, syslog.LOG_INFO|syslog.LOG_LOCAL0, SyslogTag)
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}

	return &syslogWriter{writer: writer}, nil
}

// Write sends an entry; denied decisions go out as warnings
func (w *syslogWriter) Write(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal %s entry: %w", entry.Kind(), err)
	}
	msg := string(data)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch SeverityOf(entry) {
	case SeverityWarning:
		return w.writer.Warning(msg)
	case SeverityNotice:
		return w.writer.Notice(msg)
	default:
		return w.writer.Info(msg)
	}
}

func (w *syslogWriter) Close() error {
	return w.writer.Close()
}
