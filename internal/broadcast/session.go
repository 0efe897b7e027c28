// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package broadcast

import (
	"context"
	"log/slog"
)

// AuthChannel is the base channel name for auth-state announcements.
const AuthChannel = "auth"

// KindReloadAuth tells receivers to re-fetch their authentication state.
const KindReloadAuth = "reload-auth"

// AuthChannelFor returns the channel shared by all client contexts of one
// user agent. An empty agent ID maps to the bare AuthChannel.
func AuthChannelFor(agentID string) string {
	if agentID == "" {
		return AuthChannel
	}
	return AuthChannel + ":" + agentID
}

// SessionAnnouncer publishes auth-state changes for a user agent.
type SessionAnnouncer struct {
	hub    *Hub
	logger *slog.Logger
}

// NewSessionAnnouncer creates an announcer on hub.
func NewSessionAnnouncer(hub *Hub, logger *slog.Logger) *SessionAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAnnouncer{hub: hub, logger: logger}
}

// Announce posts kind on the agent's auth channel. Without an agent ID there
// is no way to scope the announcement, so nothing is sent.
func (a *SessionAnnouncer) Announce(ctx context.Context, agentID, kind string) {
	if agentID == "" {
		a.logger.DebugContext(ctx, "auth change not announced: no agent id", "kind", kind)
		return
	}
	channel := AuthChannelFor(agentID)
	n := a.hub.Publish(channel, Message{Kind: kind})
	a.logger.DebugContext(ctx, "auth change announced",
		"channel", channel,
		"kind", kind,
		"receivers", n,
	)
}
