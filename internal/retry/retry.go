package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// Policy bounds how often a network operation is retried.
type Policy struct {
	Retries uint64        // additional attempts after the first
	Wait    time.Duration // initial backoff interval
}

// Default retries three times starting at half a second.
var Default = Policy{Retries: 3, Wait: 500 * time.Millisecond}

// None performs exactly one attempt.
var None = Policy{}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Wait > 0 {
		b.InitialInterval = p.Wait
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, p.Retries), ctx)
}

// Do runs op until it succeeds, returns an error wrapped with Permanent,
// runs out of retries or ctx is done. Transient failures are logged at Warn.
func Do(ctx context.Context, p Policy, logger *log.Logger, what string, op func() error) error {
	notify := func(err error, next time.Duration) {
		logger.Warn("Retrying", "op", what, "err", err, "backoff", next)
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
