package ports

import "github.com/ghalamif/HapticFlow/internal/domain"

// Source pushes signals from one game integration (OSC, serial, OPC UA, log
// tail, screen capture) into its mapper. Stop must release any file, socket
// or capture handle the source holds.
type Source interface {
	Start(out chan<- domain.Signal) error
	Stop() error
}
