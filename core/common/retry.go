package common

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

/*WithRetries - run op up to attempts times, backing off between tries.
Only errors the taxonomy marks retryable are retried; everything else
returns immediately. */
func WithRetries(ctx context.Context, attempts int, op func() error) error {
	b := &backoff.Backoff{
		Min:    50 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil || !Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return err
}
