// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultRetryBase is the first backoff interval.
const DefaultRetryBase = 200 * time.Millisecond

// Retrying retries a failing dispatcher with exponential backoff.
type Retrying struct {
	next    Dispatcher
	retries uint64
	base    time.Duration
	logger  *slog.Logger
}

// NewRetrying wraps next. retries is the number of attempts after the
// first; zero disables retrying.
func NewRetrying(next Dispatcher, retries uint64, base time.Duration, logger *slog.Logger) *Retrying {
	if base <= 0 {
		base = DefaultRetryBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, retries: retries, base: base, logger: logger}
}

// Dispatch calls the wrapped dispatcher until it succeeds, the retry budget
// is spent, or ctx is done.
func (r *Retrying) Dispatch(ctx context.Context, n Notification) error {
	backoff := retry.WithMaxRetries(r.retries, retry.WithJitterPercent(10, retry.NewExponential(r.base)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.next.Dispatch(ctx, n)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.logger.DebugContext(ctx, "notification attempt failed",
			"kind", string(n.Kind),
			"attempt", attempt,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("NOTIFY_DISPATCH_FAILED").
			With("kind", string(n.Kind)).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
