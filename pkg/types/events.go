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
package types

// StreamEventType tags events emitted by provider adapters while consuming
// an LLM completion stream. The cycle engine treats these as opaque tags;
// providers are responsible for mapping their native streaming and
// tool-call semantics into this shape.
type StreamEventType string

const (
	// EventResponseChunk carries an incremental text delta.
	EventResponseChunk StreamEventType = "response_chunk"

	// EventToolRequests carries one or more parsed tool invocations.
	EventToolRequests StreamEventType = "tool_requests"

	// EventAgentThought carries internal reasoning extracted from the
	// stream (thinking tags or native thinking blocks).
	EventAgentThought StreamEventType = "agent_thought"

	// EventStateChangeRequested is emitted when the text contains a
	// <request_state state='…'/> directive.
	EventStateChangeRequested StreamEventType = "agent_state_change_requested"

	// EventWorkflowExecuted signals that the adapter already applied a
	// workflow-level result and the cycle should adopt it.
	EventWorkflowExecuted StreamEventType = "workflow_executed"

	// EventMalformedToolCall signals tool-call text that failed parsing.
	// Payload carries the raw text for the recovery pass.
	EventMalformedToolCall StreamEventType = "malformed_tool_call"

	// EventFinalResponse carries the assistant's completed answer.
	EventFinalResponse StreamEventType = "final_response"

	// EventError carries a provider-level failure.
	EventError StreamEventType = "error"

	// EventPMStartupMissingTaskList flags a PM startup turn that thought
	// but never produced the expected <task_list> block.
	EventPMStartupMissingTaskList StreamEventType = "pm_startup_missing_task_list_after_think"

	// EventPMCompletionDetection flags assistant text that looks like a
	// project-completion claim needing verification.
	EventPMCompletionDetection StreamEventType = "pm_completion_detection"
)

// WorkflowResult is the payload of EventWorkflowExecuted: an already
// decided workflow outcome the cycle engine applies verbatim.
type WorkflowResult struct {
	// NewState, when non-empty, is applied through the workflow manager.
	NewState string

	// NewStatus, when non-empty, overrides the agent status.
	NewStatus AgentStatus

	// UIMessage, when non-empty, is broadcast as a system notification.
	UIMessage string

	// ScheduleAgentIDs lists agents to activate after this cycle.
	ScheduleAgentIDs []string
}

// StreamEvent is one event from a provider adapter.
type StreamEvent struct {
	Type StreamEventType

	// Content carries text for chunk/thought/final/malformed events.
	Content string

	// ToolCalls is set for EventToolRequests.
	ToolCalls []ToolCall

	// RawAssistantText is the full assistant text accumulated so far,
	// set on tool_requests and final_response events so the engine can
	// detect embedded state-change requests.
	RawAssistantText string

	// RequestedState is set for EventStateChangeRequested.
	RequestedState string

	// Workflow is set for EventWorkflowExecuted.
	Workflow *WorkflowResult

	// Err is set for EventError.
	Err error
}

// ChatRequest is the provider-agnostic completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int

	// AgentKind lets adapters enable kind-specific detections such as
	// pm_startup_missing_task_list_after_think.
	AgentKind AgentKind

	// AgentState is the workflow state driving this turn.
	AgentState string
}
