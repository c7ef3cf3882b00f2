package policy

import (
	"sync/atomic"
)

// Holder publishes the current Config to concurrent readers. Replace swaps
// the whole table set in one step, so a reader sees either the old or the
// new Config and never a mix.
type Holder struct {
	current atomic.Pointer[Config]
	swaps   atomic.Uint64
}

// NewHolder creates a holder with an initial configuration
func NewHolder(cfg *Config) *Holder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

// Load returns the current configuration snapshot
func (h *Holder) Load() *Config {
	return h.current.Load()
}

// Replace installs a new configuration and returns the previous one.
// A nil cfg is ignored.
func (h *Holder) Replace(cfg *Config) *Config {
	if cfg == nil {
		return h.current.Load()
	}
	h.swaps.Add(1)
	return h.current.Swap(cfg)
}

// Swaps returns how many times the configuration has been replaced
func (h *Holder) Swaps() uint64 {
	return h.swaps.Load()
}
