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

// Package llm defines the provider contract consumed by the cycle engine
// and the guardian: a streaming completion call whose native semantics are
// mapped into the runtime's typed event stream.
package llm

import (
	"context"

	"github.com/teradata-labs/quorum/pkg/types"
)

// Provider is a streaming LLM backend. StreamCompletion returns a channel
// that is closed when the stream ends; the last event is one of
// final_response, tool_requests, malformed_tool_call,
// agent_state_change_requested, a PM detection, or error.
type Provider interface {
	// StreamCompletion starts a completion and emits interpreted events.
	StreamCompletion(ctx context.Context, req types.ChatRequest) (<-chan types.StreamEvent, error)

	// Name returns the provider name this client is bound to.
	Name() string
}

// ToolCallParseFunc extracts tool calls from assistant text. It returns
// the parsed calls and human-readable messages for blocks that looked like
// tool calls but failed to parse. Wired to the tool layer's XML parser at
// startup; kept as a function type to avoid a dependency cycle.
type ToolCallParseFunc func(text string) (calls []types.ToolCall, malformed []string)
