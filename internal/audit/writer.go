package audit

// Entry is an audit event a Writer can persist. DecisionEvent,
// ConfigChangeEvent and the sink lifecycle markers implement it.
type Entry interface {
	// Kind names the event
	Kind() EventType
	// Denied reports whether the entry records a refused request
	Denied() bool
}

// Severity ranks entries for sinks that support priorities
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityNotice
	SeverityWarning
)

// SeverityOf ranks an entry: denials are warnings, policy installs are
// notices, everything else is informational
func SeverityOf(e Entry) Severity {
	switch {
	case e.Denied():
		return SeverityWarning
	case e.Kind() == EventTypeConfigChange:
		return SeverityNotice
	default:
		return SeverityInfo
	}
}

// Writer delivers audit entries to a sink
type Writer interface {
	Write(entry Entry) error
	Close() error
}
