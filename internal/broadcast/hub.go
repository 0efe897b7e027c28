// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package broadcast is an in-process publish/subscribe hub for telling open
// client contexts that their auth state changed.
//
// Delivery is best effort: no acknowledgement, no ordering across
// publishers, no replay for subscribers that join later.
package broadcast

import (
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 16

// Message is a broadcast notification. Receivers must re-derive state from
// the server instead of trusting anything beyond Kind.
type Message struct {
	Channel string `json:"-"`
	Kind    string `json:"kind"`
}

// Hub distributes messages to subscribers by channel name.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub creates a hub. A nil logger uses slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		logger: logger,
	}
}

// Subscription receives messages published on one channel until closed.
type Subscription struct {
	hub     *Hub
	channel string
	ch      chan Message
	once    sync.Once
}

// C returns the receive side. It is closed by Close.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close detaches the subscription and closes C. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Subscribe attaches a new subscription to channel.
func (h *Hub) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		hub:     h,
		channel: channel,
		ch:      make(chan Message, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Subscription]struct{})
	}
	h.subs[channel][sub] = struct{}{}
	return sub
}

// Publish delivers msg to every current subscriber of channel without
// blocking. A subscriber whose buffer is full misses the message.
// Returns the number of subscribers that received it.
func (h *Hub) Publish(channel string, msg Message) int {
	msg.Channel = channel

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[channel] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			h.logger.Warn("broadcast dropped: subscriber buffer full",
				"channel", channel,
				"kind", msg.Kind,
			)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sub.channel]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.channel)
	}
	close(sub.ch)
}
