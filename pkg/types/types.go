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

// Package types contains shared types used across the quorum runtime.
// This package breaks import cycles by providing the common vocabulary that
// the cycle engine, workflow manager, health monitor, and LLM adapters all
// depend on.
package types

import (
	"sync"
	"time"
)

// AgentKind identifies the workflow family an agent belongs to.
type AgentKind string

const (
	KindAdmin    AgentKind = "admin"
	KindPM       AgentKind = "pm"
	KindWorker   AgentKind = "worker"
	KindGuardian AgentKind = "guardian"
)

// Valid reports whether the kind is one of the four known agent kinds.
func (k AgentKind) Valid() bool {
	switch k {
	case KindAdmin, KindPM, KindWorker, KindGuardian:
		return true
	}
	return false
}

// AgentStatus is the scheduling status of an agent. Exactly one cycle may
// run against an agent at a time; the status is how the scheduler and the
// interaction handler coordinate.
type AgentStatus string

const (
	StatusIdle               AgentStatus = "idle"
	StatusProcessing         AgentStatus = "processing"
	StatusExecutingTool      AgentStatus = "executing_tool"
	StatusAwaitingTool       AgentStatus = "awaiting_tool"
	StatusAwaitingCGReview   AgentStatus = "awaiting_cg_review"
	StatusAwaitingUserReview AgentStatus = "awaiting_user_review_cg"
	StatusError              AgentStatus = "error"
)

// Paused reports whether the status blocks new cycles entirely. Messages
// arriving for a paused agent are queued into history only.
func (s AgentStatus) Paused() bool {
	return s == StatusAwaitingUserReview || s == StatusError
}

// Message roles. History is append-only; summarization replaces the list
// wholesale.
const (
	RoleSystem                = "system"
	RoleUser                  = "user"
	RoleAssistant             = "assistant"
	RoleTool                  = "tool"
	RoleSystemError           = "system_error"
	RoleSystemIntervention    = "system_intervention"
	RoleAgentStateChange      = "agent_state_change"
	RoleFrameworkNotification = "system_framework_notification"
)

// ToolCall represents a single tool invocation requested by the LLM.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is a single entry in an agent's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls is set on assistant messages that invoked tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on role=tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// FailoverState tracks which (provider, model, key) combinations have been
// tried for an agent since its last successful cycle.
type FailoverState struct {
	// TriedModelsOnCurrentKey is the set of model ids tried against the
	// currently active external key.
	TriedModelsOnCurrentKey map[string]bool

	// TriedModelsPerLocalProvider maps local provider name to the set of
	// model ids already tried there.
	TriedModelsPerLocalProvider map[string]map[string]bool

	// TriedExternalKeys is the set of key fingerprints tried for the
	// current provider.
	TriedExternalKeys map[string]bool
}

// NewFailoverState returns an empty failover state.
func NewFailoverState() *FailoverState {
	return &FailoverState{
		TriedModelsOnCurrentKey:     make(map[string]bool),
		TriedModelsPerLocalProvider: make(map[string]map[string]bool),
		TriedExternalKeys:           make(map[string]bool),
	}
}

// MarkLocalModelTried records a (local provider, model) attempt.
func (f *FailoverState) MarkLocalModelTried(provider, model string) {
	if f.TriedModelsPerLocalProvider[provider] == nil {
		f.TriedModelsPerLocalProvider[provider] = make(map[string]bool)
	}
	f.TriedModelsPerLocalProvider[provider][model] = true
}

// LocalModelTried reports whether a (local provider, model) was tried.
func (f *FailoverState) LocalModelTried(provider, model string) bool {
	return f.TriedModelsPerLocalProvider[provider][model]
}

// TaskSummary is the simplified view of an unassigned project task kept on
// a PM during worker activation.
type TaskSummary struct {
	UUID        string `json:"uuid"`
	Description string `json:"description"`
}

// ReviewPayload is what the UI needs to display a guardian concern while
// the originating agent is paused.
type ReviewPayload struct {
	OriginalText string    `json:"original_text"`
	Concern      string    `json:"concern"`
	RaisedAt     time.Time `json:"raised_at"`
}

// Agent is one addressable reasoning unit. Its mutable fields are guarded
// by an internal mutex; the scheduler guarantees at most one in-flight
// cycle per agent, but inbound messages and the health monitor touch
// history and status from other goroutines.
type Agent struct {
	mu sync.RWMutex

	// Immutable after construction.
	ID        string
	Kind      AgentKind
	Bootstrap bool

	// Persona is the display name used in the address book.
	Persona string

	// Current provider/model binding. Mutated by the failover handler.
	ProviderName string
	ModelID      string
	Temperature  float64

	// ConfigSystemPrompt is the personality text from configuration,
	// injected into the standard framework instructions.
	ConfigSystemPrompt string

	// SandboxPath is the filesystem root the agent's tools operate under.
	SandboxPath string

	state   string
	status  AgentStatus
	history []Message
	teamID  string

	// needsPriorityRecheck is set when a message arrives mid-cycle; the
	// cycle engine restarts its turn when it observes the flag.
	needsPriorityRecheck bool

	// Failover bookkeeping, reset after a successful cycle.
	Failover *FailoverState

	// AwaitingApproval marks a PM whose project has not been approved by
	// the user yet; no cycles are scheduled until approval.
	AwaitingApproval bool

	// CreatedAgentsForBuild counts workers created while a PM is in the
	// build_team_tasks state.
	CreatedAgentsForBuild int

	// TargetWorkersForBuild is the worker head count the PM is building
	// toward (0 means fall back to the configured maximum).
	TargetWorkersForBuild int

	// ConsecutiveToolFailures backs the PM three-strike guard.
	ConsecutiveToolFailures int

	// PendingTasksSummary holds the simplified unassigned-task list a PM
	// accumulated during activate_workers.
	PendingTasksSummary []TaskSummary

	// NeedsInitialListTools is set when a PM enters the manage state.
	NeedsInitialListTools bool

	// ReviewPayload preserves the original text and guardian concern while
	// the agent is paused in awaiting_user_review_cg.
	ReviewPayload *ReviewPayload
}

// NewAgent constructs an agent in the idle status with an empty history.
func NewAgent(id string, kind AgentKind, persona string) *Agent {
	return &Agent{
		ID:       id,
		Kind:     kind,
		Persona:  persona,
		status:   StatusIdle,
		Failover: NewFailoverState(),
	}
}

// State returns the agent's workflow state.
func (a *Agent) State() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// SetState stores the workflow state. Validity against the agent kind is
// the workflow manager's responsibility.
func (a *Agent) SetState(state string) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

// Status returns the scheduling status.
func (a *Agent) Status() AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// SetStatus stores the scheduling status.
func (a *Agent) SetStatus(status AgentStatus) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
}

// TeamID returns the agent's team, or "" when unassigned.
func (a *Agent) TeamID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.teamID
}

// SetTeamID assigns the agent to a team ("" clears the assignment).
func (a *Agent) SetTeamID(teamID string) {
	a.mu.Lock()
	a.teamID = teamID
	a.mu.Unlock()
}

// AppendMessage appends one message to history, stamping the time when the
// caller left it zero.
func (a *Agent) AppendMessage(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	a.mu.Lock()
	a.history = append(a.history, msg)
	a.mu.Unlock()
}

// History returns a copy of the conversation history.
func (a *Agent) History() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// HistoryLen returns the number of messages without copying.
func (a *Agent) HistoryLen() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.history)
}

// ReplaceHistory swaps the history wholesale. Used by the summarizer and
// by session restore.
func (a *Agent) ReplaceHistory(history []Message) {
	a.mu.Lock()
	a.history = history
	a.mu.Unlock()
}

// RemoveHistoryAt deletes the messages at the given indices, preserving
// order. Used by contaminated-history cleanup.
func (a *Agent) RemoveHistoryAt(indices map[int]bool) int {
	if len(indices) == 0 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.history[:0]
	removed := 0
	for i, msg := range a.history {
		if indices[i] {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	a.history = kept
	return removed
}

// SetPriorityRecheck flags the agent so an in-flight cycle restarts its
// turn at the next opportunity.
func (a *Agent) SetPriorityRecheck(v bool) {
	a.mu.Lock()
	a.needsPriorityRecheck = v
	a.mu.Unlock()
}

// ConsumePriorityRecheck returns the flag and clears it atomically.
func (a *Agent) ConsumePriorityRecheck() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.needsPriorityRecheck
	a.needsPriorityRecheck = false
	return v
}

// ModelInfo describes one discovered model.
type ModelInfo struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`

	// NumParameters is the parameter count, 0 when unknown.
	NumParameters int64 `json:"num_parameters,omitempty"`

	// Score is the performance score at discovery time, 0 when unknown.
	Score float64 `json:"score,omitempty"`

	// Local marks models served from loopback/LAN endpoints.
	Local bool `json:"local,omitempty"`
}

// ModelTier selects which discovered models are eligible for binding.
type ModelTier string

const (
	TierLocal ModelTier = "LOCAL"
	TierFree  ModelTier = "FREE"
	TierAll   ModelTier = "ALL"
)
