package fetch

import (
	"context"
	"time"
)

// tokenBucket throttles a transfer to a configured bytes/sec rate. Tokens
// replenish continuously; a consumer that outruns the bucket sleeps for
// exactly the deficit.
type tokenBucket struct {
	rate       float64 // tokens (bytes) per second
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(bytesPerSec int64) *tokenBucket {
	return &tokenBucket{
		rate:       float64(bytesPerSec),
		capacity:   float64(bytesPerSec),
		tokens:     float64(bytesPerSec),
		lastRefill: time.Now(),
	}
}

// take accounts n bytes against the bucket, sleeping until the bucket can
// cover the deficit. Honors cancellation while sleeping.
func (tb *tokenBucket) take(ctx context.Context, n int) error {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.tokens -= float64(n)
	if tb.tokens >= 0 {
		return nil
	}
	wait := time.Duration(-tb.tokens / tb.rate * float64(time.Second))
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
