package capture

import (
	"context"
	"errors"
	"fmt"
)

// ImageSource yields the raw picture for a capture: a camera frame, a picked
// file or an uploaded body.
type ImageSource interface {
	Acquire(ctx context.Context) ([]byte, error)
}

// BytesSource serves an image that is already in memory.
type BytesSource []byte

func (b BytesSource) Acquire(ctx context.Context) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: no image data", ErrImageSourceUnavailable)
	}
	return b, nil
}

// SourceFunc adapts a function to ImageSource.
type SourceFunc func(ctx context.Context) ([]byte, error)

func (f SourceFunc) Acquire(ctx context.Context) ([]byte, error) { return f(ctx) }

func acquire(ctx context.Context, src ImageSource) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source", ErrImageSourceUnavailable)
	}
	data, err := src.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrImageSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrImageSourceUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrImageSourceUnavailable)
	}
	return data, nil
}
