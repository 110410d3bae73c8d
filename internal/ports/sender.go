package ports

import "github.com/ghalamif/HapticFlow/internal/domain"

// CommandSender is the best-effort channel to the vest daemon. Send never
// reports failure to the caller.
type CommandSender interface {
	Send(msg domain.Message)
	State() domain.ConnectionState
}
