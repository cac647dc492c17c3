// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ui fans runtime events out to connected user interfaces over
// Server-Sent Events.
package ui

import (
	"encoding/json"
	"net/http"
	"time"

	sse "github.com/r3labs/sse/v2"
	"go.uber.org/zap"
)

// Event types pushed to the UI stream.
const (
	EventAgentStatusUpdate      = "agent_status_update"
	EventAgentStateChange       = "agent_state_change"
	EventAgentMessage           = "agent_message"
	EventToolResult             = "tool_result"
	EventCGConcern              = "cg_concern"
	EventProjectPendingApproval = "project_pending_approval"
	EventProjectApproved        = "project_approved"
	EventContextSummarization   = "context_summarization"
	EventXMLRecoverySuccess     = "xml_recovery_success"
	EventSystemNotification     = "system_notification"
	EventContaminatedCleanup    = "automatic_contaminated_cleanup"
	EventError                  = "error"
)

// Event is one UI notification.
type Event struct {
	Type      string         `json:"type"`
	AgentID   string         `json:"agent_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Broadcaster publishes runtime events to whoever is watching.
type Broadcaster interface {
	Broadcast(event Event)
}

// NopBroadcaster discards every event. Used in tests and headless runs.
type NopBroadcaster struct{}

// Broadcast implements Broadcaster.
func (NopBroadcaster) Broadcast(Event) {}

const streamID = "events"

// SSEBroadcaster publishes events on a single SSE stream. Disconnected
// subscribers are pruned by the underlying server.
type SSEBroadcaster struct {
	server *sse.Server
	logger *zap.Logger
}

// NewSSEBroadcaster creates the SSE fan-out.
func NewSSEBroadcaster(logger *zap.Logger) *SSEBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(streamID)
	return &SSEBroadcaster{server: server, logger: logger}
}

// Broadcast implements Broadcaster.
func (b *SSEBroadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("failed to encode UI event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	b.server.Publish(streamID, &sse.Event{
		Event: []byte(event.Type),
		Data:  data,
	})
}

// Handler returns the HTTP handler clients subscribe through. The stream
// name is fixed; clients connect with ?stream=events.
func (b *SSEBroadcaster) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("stream") == "" {
			q.Set("stream", streamID)
			r.URL.RawQuery = q.Encode()
		}
		b.server.ServeHTTP(w, r)
	})
}

// Close shuts the SSE server down.
func (b *SSEBroadcaster) Close() {
	b.server.Close()
}
