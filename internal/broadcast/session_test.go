// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAnnouncer_ScopedToAgent(t *testing.T) {
	hub := NewHub(nil)
	announcer := NewSessionAnnouncer(hub, nil)

	mine := hub.Subscribe(AuthChannelFor("agent-1"))
	defer mine.Close()
	other := hub.Subscribe(AuthChannelFor("agent-2"))
	defer other.Close()

	announcer.Announce(context.Background(), "agent-1", KindReloadAuth)

	select {
	case msg := <-mine.C():
		assert.Equal(t, KindReloadAuth, msg.Kind)
	default:
		t.Fatal("agent-1 missed its announcement")
	}
	select {
	case msg := <-other.C():
		t.Fatalf("agent-2 received %q", msg.Kind)
	default:
	}
}

func TestSessionAnnouncer_EmptyAgentSendsNothing(t *testing.T) {
	hub := NewHub(nil)
	bare := hub.Subscribe(AuthChannel)
	defer bare.Close()
	require.Equal(t, 1, hub.Subscribers(AuthChannel))

	NewSessionAnnouncer(hub, nil).Announce(context.Background(), "", KindReloadAuth)

	select {
	case msg := <-bare.C():
		t.Fatalf("unscoped announcement delivered: %q", msg.Kind)
	default:
	}
}
