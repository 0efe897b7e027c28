// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/formgate/formgate/internal/broadcast"
	"github.com/formgate/formgate/internal/workflow"
)

// handleEvents streams auth-change announcements for one user agent as
// Server-Sent Events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		writeFailure(w, workflow.NewValidationError("agent", "agent is required"))
		return
	}
	sub := s.hub.Subscribe(broadcast.AuthChannelFor(agentID))
	defer sub.Close()

	if s.metrics != nil {
		s.metrics.EventStreams.Inc()
		defer s.metrics.EventStreams.Dec()
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Open the stream immediately so the client knows it is attached.
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.WarnContext(r.Context(), "event stream cannot flush", "error", err)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Kind, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
