package coordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/skirmish/internal/model"
)

// Notices shown on a session snapshot.
const (
	NoticeReconnecting    = "reconnecting…"
	NoticeOffline         = "offline"
	NoticeClaimingForfeit = "opponent idle, claiming forfeit"
)

// DefaultRetryBudget bounds how long a transient failure is retried.
const DefaultRetryBudget = 2 * time.Minute

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// withRetry runs op until it succeeds, fails with a non-transient error, or
// the retry budget is spent. While retrying, the session's snapshot carries
// NoticeReconnecting; the notice is cleared once op succeeds.
func withRetry[T any](ctx context.Context, c *Coordinator, id model.SessionID, op func() (T, error)) (T, error) {
	retried := false
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && Classify(err) != ClassTransient {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxElapsedTime(c.retryBudget),
		backoff.WithNotify(func(err error, wait time.Duration) {
			retried = true
			c.logger.Warn("channel unavailable, retrying",
				"session", id,
				"wait", wait,
				"error", err,
			)
			c.setNotice(id, NoticeReconnecting)
		}),
	)
	switch {
	case err == nil && retried:
		c.setNotice(id, "")
	case err != nil && Classify(err) == ClassTransient:
		c.setNotice(id, NoticeOffline)
	}
	return v, err
}
