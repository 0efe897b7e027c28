// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package notify

import (
	"context"
	"log/slog"
)

// LogDispatcher writes notifications to a logger instead of sending them.
// Used for development and when no mail server is configured.
type LogDispatcher struct {
	logger    *slog.Logger
	revealURL bool
}

// NewLogDispatcher creates a LogDispatcher. When revealURL is true the
// token-bearing link is included in the log line, which is only acceptable
// on a developer machine.
func NewLogDispatcher(logger *slog.Logger, revealURL bool) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger, revealURL: revealURL}
}

// Dispatch logs n.
func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	attrs := []any{
		"kind", string(n.Kind),
		"to", n.To,
		"subject", Subject(n.Kind),
	}
	if d.revealURL {
		attrs = append(attrs, "url", n.URL)
	}
	d.logger.InfoContext(ctx, "notification dispatched", attrs...)
	return nil
}
