package ports

import "github.com/ghalamif/HapticFlow/internal/domain"

// Mapper turns one signal into zero or more throttled pulses. Implementations
// own their previous-sample state and are driven by a single goroutine.
type Mapper interface {
	Kind() string
	Map(sig domain.Signal) []domain.Pulse
}
