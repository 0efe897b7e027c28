// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formgate/formgate/pkg/errutil"
)

type flakyDispatcher struct {
	failures int
	calls    int
}

func (f *flakyDispatcher) Dispatch(context.Context, Notification) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestRetrying_SucceedsAfterFailures(t *testing.T) {
	inner := &flakyDispatcher{failures: 2}
	r := NewRetrying(inner, 3, time.Millisecond, nil)

	require.NoError(t, r.Dispatch(context.Background(), Notification{Kind: KindConfirmEmail}))
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_GivesUp(t *testing.T) {
	inner := &flakyDispatcher{failures: 10}
	r := NewRetrying(inner, 2, time.Millisecond, nil)

	err := r.Dispatch(context.Background(), Notification{Kind: KindConfirmEmail})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	errutil.AssertErrorCode(t, err, "NOTIFY_DISPATCH_FAILED")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetrying_ZeroRetries(t *testing.T) {
	inner := &flakyDispatcher{failures: 1}
	r := NewRetrying(inner, 0, time.Millisecond, nil)

	require.Error(t, r.Dispatch(context.Background(), Notification{}))
	assert.Equal(t, 1, inner.calls)
}

func TestRetrying_StopsOnContextDeadline(t *testing.T) {
	calls := 0
	inner := DispatcherFunc(func(ctx context.Context, _ Notification) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	r := NewRetrying(inner, 5, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Dispatch(ctx, Notification{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}
