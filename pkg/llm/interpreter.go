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
package llm

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/types"
)

var (
	thinkRe        = regexp.MustCompile(`(?s)<think(?:ing)?>(.*?)</think(?:ing)?>`)
	openThinkRe    = regexp.MustCompile(`(?s)<think(?:ing)?>.*\z`)
	requestStateRe = regexp.MustCompile(`<request_state\s+state\s*=\s*['"]([A-Za-z_]+)['"]\s*/?\s*>`)
	taskListRe     = regexp.MustCompile(`(?s)<task_list>.*?</task_list>`)
	completionRe   = regexp.MustCompile(`(?i)\b(?:project|all tasks|everything)\b[^.!\n]{0,60}\bis\s+complete\b|\ball\s+tasks\s+are\s+complete\b`)
)

// Interpreter turns a provider's raw text stream into the typed event
// stream the cycle engine consumes. Adapters feed deltas with Chunk and
// close out with Finish; both emit onto the supplied channel.
type Interpreter struct {
	parse  ToolCallParseFunc
	logger *zap.Logger

	buf strings.Builder
}

// NewInterpreter creates an interpreter. parse may be nil for callers that
// never expect tool calls (the guardian's review path).
func NewInterpreter(parse ToolCallParseFunc, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{parse: parse, logger: logger}
}

// Chunk records a text delta and emits it as a response_chunk event.
func (it *Interpreter) Chunk(out chan<- types.StreamEvent, delta string) {
	if delta == "" {
		return
	}
	it.buf.WriteString(delta)
	out <- types.StreamEvent{Type: types.EventResponseChunk, Content: delta}
}

// Text returns the text accumulated so far.
func (it *Interpreter) Text() string { return it.buf.String() }

// Finish classifies the accumulated text and emits the terminal event
// sequence: thoughts first, then exactly one of tool_requests,
// malformed_tool_call, agent_state_change_requested, a PM detection, or
// final_response. A turn that produced only thinking emits no terminal
// text event; the engine's text-buffer fallback covers it.
func (it *Interpreter) Finish(out chan<- types.StreamEvent, req types.ChatRequest) {
	raw := it.buf.String()

	thought := extractThinking(raw)
	if thought != "" {
		out <- types.StreamEvent{Type: types.EventAgentThought, Content: thought}
	}
	cleaned := StripThinking(raw)

	if it.parse != nil {
		calls, malformed := it.parse(cleaned)
		if len(calls) > 0 {
			out <- types.StreamEvent{
				Type:             types.EventToolRequests,
				ToolCalls:        calls,
				RawAssistantText: raw,
			}
			return
		}
		if len(malformed) > 0 {
			out <- types.StreamEvent{
				Type:             types.EventMalformedToolCall,
				Content:          strings.Join(malformed, "; "),
				RawAssistantText: raw,
			}
			return
		}
	}

	if m := requestStateRe.FindStringSubmatch(cleaned); m != nil {
		out <- types.StreamEvent{
			Type:             types.EventStateChangeRequested,
			RequestedState:   m[1],
			RawAssistantText: raw,
		}
		return
	}

	if req.AgentKind == types.KindPM {
		if req.AgentState == "startup" && thought != "" && !taskListRe.MatchString(cleaned) {
			out <- types.StreamEvent{
				Type:             types.EventPMStartupMissingTaskList,
				Content:          cleaned,
				RawAssistantText: raw,
			}
			return
		}
		if req.AgentState == "manage" && completionRe.MatchString(cleaned) {
			out <- types.StreamEvent{
				Type:             types.EventPMCompletionDetection,
				Content:          strings.TrimSpace(cleaned),
				RawAssistantText: raw,
			}
			return
		}
	}

	final := strings.TrimSpace(cleaned)
	if final == "" {
		return
	}
	out <- types.StreamEvent{
		Type:             types.EventFinalResponse,
		Content:          final,
		RawAssistantText: raw,
	}
}

// extractThinking concatenates the contents of every closed thinking tag.
func extractThinking(text string) string {
	var parts []string
	for _, m := range thinkRe.FindAllStringSubmatch(text, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// StripThinking removes closed thinking tags and any unterminated one at
// the end of the text.
func StripThinking(text string) string {
	text = thinkRe.ReplaceAllString(text, "")
	text = openThinkRe.ReplaceAllString(text, "")
	return text
}

// ContainsStateRequest reports whether text carries a request_state
// directive and returns the requested state.
func ContainsStateRequest(text string) (string, bool) {
	if m := requestStateRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}
