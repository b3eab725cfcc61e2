package socket

import (
	"sync"
	"time"

	"github.com/couriermq/courier/internal/config"
)

// Recognized Settings keys. The transport consults mask and high water mark
// on every write.
const (
	SettingMask                      = "mask"
	SettingSuppressCancellationError = "suppressCancellationError"
	SettingHighWaterMark             = "highWaterMark"
	SettingConnectionTimeout         = "connectionTimeout"
)

// Settings is the open string-keyed option map a server shares with its
// accepted connections. Recognized keys get typed accessors; unknown keys are
// stored untouched so callers can hang their own options on a server.
type Settings struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewSettings() *Settings {
	return &Settings{values: make(map[string]any)}
}

// SettingsFromConfig seeds a settings map from the transport-relevant config
// fields.
func SettingsFromConfig(cfg config.Config) *Settings {
	s := NewSettings()
	if len(cfg.Mask) > 0 {
		s.Set(SettingMask, []byte(cfg.Mask))
	}
	if cfg.SuppressCancellationError {
		s.Set(SettingSuppressCancellationError, true)
	}
	if cfg.HighWaterMark > 0 {
		s.Set(SettingHighWaterMark, cfg.HighWaterMark)
	}
	if cfg.ConnectionTimeout > 0 {
		s.Set(SettingConnectionTimeout, cfg.ConnectionTimeout)
	}
	return s
}

func (s *Settings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// Mask returns the transport mask, or nil when unset or not byte-shaped.
func (s *Settings) Mask() []byte {
	value, ok := s.Get(SettingMask)
	if !ok {
		return nil
	}
	switch mask := value.(type) {
	case []byte:
		return mask
	case config.Secret:
		return mask
	}
	return nil
}

// SuppressCancellationError reports whether cancellation teardown should stay
// silent instead of raising a token-cancelled error.
func (s *Settings) SuppressCancellationError() bool {
	value, _ := s.Get(SettingSuppressCancellationError)
	suppress, _ := value.(bool)
	return suppress
}

// HighWaterMark returns the pending-write byte count at which writes report
// backpressure.
func (s *Settings) HighWaterMark() int {
	value, _ := s.Get(SettingHighWaterMark)
	mark, _ := value.(int)
	if mark <= 0 {
		return config.DefaultHighWaterMark
	}
	return mark
}

// ConnectionTimeout returns the dial and listen-bind deadline, zero when
// unset.
func (s *Settings) ConnectionTimeout() time.Duration {
	value, _ := s.Get(SettingConnectionTimeout)
	timeout, _ := value.(time.Duration)
	if timeout < 0 {
		return 0
	}
	return timeout
}
