package ports

import (
	"context"
	"image"
)

// FrameSource returns one captured frame per call.
type FrameSource interface {
	Capture(ctx context.Context) (*image.RGBA, error)
	Close() error
}
