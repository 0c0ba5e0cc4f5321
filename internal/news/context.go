package news

import (
	"context"
	"time"
)

// WithTimeout bounds ctx by d. A non-positive d leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
