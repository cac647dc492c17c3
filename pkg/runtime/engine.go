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
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/failover"
	"github.com/teradata-labs/quorum/pkg/health"
	"github.com/teradata-labs/quorum/pkg/llm"
	"github.com/teradata-labs/quorum/pkg/perf"
	"github.com/teradata-labs/quorum/pkg/storage"
	"github.com/teradata-labs/quorum/pkg/summarizer"
	"github.com/teradata-labs/quorum/pkg/tools"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/ui"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

// malformedFeedbackWindow rate-limits corrective feedback per (agent,
// error signature).
const malformedFeedbackWindow = 5 * time.Minute

// Outcome classifies one finished cycle.
type Outcome struct {
	CompletedSuccessfully bool
	ExecutedTool          bool
	ThoughtProduced       bool
	StateChangeRequested  bool
	ProviderLevelError    bool
	KeyRelatedError       bool
	TriggerFailover       bool
	NeedsReactivation     bool

	Err error
}

// MeaningfulAction reports whether the cycle did real work.
func (o *Outcome) MeaningfulAction() bool {
	return o.ExecutedTool || o.StateChangeRequested
}

// Engine executes one agent turn at a time: prompt assembly, the event
// loop over the provider stream, guardian review, health bookkeeping, and
// next-step scheduling.
type Engine struct {
	orch       Orchestrator
	handler    *Handler
	wf         *workflow.Manager
	factory    *llm.Factory
	registry   *tools.Registry
	guardian   *health.Guardian
	monitor    *health.Monitor
	summarizer *summarizer.Summarizer
	failover   *failover.Handler
	tracker    *perf.Tracker
	store      *storage.Store
	events     ui.Broadcaster
	pctx       workflow.PromptContext
	cfg        Config
	logger     *zap.Logger

	mu                sync.Mutex
	malformedFeedback map[string]time.Time
	pmUnproductive    map[string]int
}

// NewEngine wires the cycle engine.
func NewEngine(orch Orchestrator, handler *Handler, wf *workflow.Manager, factory *llm.Factory,
	registry *tools.Registry, guardian *health.Guardian, monitor *health.Monitor,
	summ *summarizer.Summarizer, fo *failover.Handler, tracker *perf.Tracker,
	store *storage.Store, events ui.Broadcaster, pctx workflow.PromptContext,
	cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = ui.NopBroadcaster{}
	}
	return &Engine{
		orch:              orch,
		handler:           handler,
		wf:                wf,
		factory:           factory,
		registry:          registry,
		guardian:          guardian,
		monitor:           monitor,
		summarizer:        summ,
		failover:          fo,
		tracker:           tracker,
		store:             store,
		events:            events,
		pctx:              pctx,
		cfg:               cfg,
		logger:            logger,
		malformedFeedback: make(map[string]time.Time),
		pmUnproductive:    make(map[string]int),
	}
}

// RunCycle executes one turn for the agent, including internal restarts
// on priority recheck, then applies health bookkeeping and schedules the
// next step.
func (e *Engine) RunCycle(ctx context.Context, agent *types.Agent, retryCount int) Outcome {
	outcome := Outcome{}
	lastResponse := ""

	turn := 0
	for {
		turn++
		if turn > e.cfg.MaxCycleTurns {
			e.handler.feedback(ctx, agent, fmt.Sprintf(
				"Cycle aborted: exceeded the maximum of %d turns.", e.cfg.MaxCycleTurns))
			agent.SetStatus(types.StatusError)
			outcome.Err = fmt.Errorf("agent %s exceeded max cycle turns", agent.ID)
			break
		}

		text, turnOutcome := e.runTurn(ctx, agent)
		lastResponse = text
		mergeOutcome(&outcome, turnOutcome)
		if turnOutcome.Err != nil {
			break
		}

		if agent.ConsumePriorityRecheck() {
			e.logger.Debug("priority recheck, restarting turn", zap.String("agent_id", agent.ID))
			continue
		}
		break
	}

	if outcome.Err == nil {
		outcome.CompletedSuccessfully = true
	}

	e.recordHealth(ctx, agent, lastResponse, &outcome)
	e.scheduleNext(ctx, agent, retryCount, &outcome)

	if agent.Status() == types.StatusProcessing || agent.Status() == types.StatusExecutingTool {
		agent.SetStatus(types.StatusIdle)
	}
	e.broadcastStatus(agent)
	return outcome
}

// runTurn performs a single prompt→stream→events pass. The returned text
// is the cleaned assistant output used for health accounting.
func (e *Engine) runTurn(ctx context.Context, agent *types.Agent) (string, Outcome) {
	var o Outcome

	systemPrompt, err := e.wf.SystemPrompt(ctx, agent, e.orch, e.pctx)
	if err != nil {
		o.Err = fmt.Errorf("failed to assemble system prompt: %w", err)
		return "", o
	}

	messages := append([]types.Message{{Role: types.RoleSystem, Content: systemPrompt}}, agent.History()...)
	if e.summarizer != nil && e.summarizer.NeedsSummarization(messages) {
		condensed, applied := e.summarizer.Summarize(ctx, messages)
		if applied {
			// The system prompt is rebuilt each turn; only the tail is
			// stored on the agent.
			agent.ReplaceHistory(condensed[1:])
			messages = condensed
			e.events.Broadcast(ui.Event{
				Type:    ui.EventContextSummarization,
				AgentID: agent.ID,
				Payload: map[string]any{"messages": len(condensed)},
			})
		}
	}

	agent.SetStatus(types.StatusProcessing)
	e.broadcastStatus(agent)

	provider, err := e.factory.ClientFor(agent.ProviderName)
	if err != nil {
		o.Err = err
		o.ProviderLevelError = true
		o.TriggerFailover = true
		return "", o
	}

	req := types.ChatRequest{
		Model:       agent.ModelID,
		Messages:    messages,
		Temperature: agent.Temperature,
		AgentKind:   agent.Kind,
		AgentState:  agent.State(),
	}
	start := time.Now()
	events, err := provider.StreamCompletion(ctx, req)
	if err != nil {
		e.classifyProviderError(err, &o)
		return "", o
	}

	actionTaken := false
	cleanedText := ""
	for ev := range events {
		switch ev.Type {
		case types.EventResponseChunk:
			// Chunks are interim; the terminal event carries the text.

		case types.EventAgentThought:
			o.ThoughtProduced = true
			e.saveThought(ctx, agent, ev.Content)

		case types.EventWorkflowExecuted:
			e.applyWorkflowResult(ctx, agent, ev.Workflow)
			actionTaken = true

		case types.EventMalformedToolCall:
			actionTaken = e.handleMalformed(ctx, agent, ev, &o)

		case types.EventStateChangeRequested:
			e.handleStateChange(ctx, agent, ev.RequestedState, ev.RawAssistantText)
			o.StateChangeRequested = true
			o.NeedsReactivation = true
			actionTaken = true

		case types.EventToolRequests:
			e.handleToolRequests(ctx, agent, ev, &o)
			actionTaken = true

		case types.EventFinalResponse:
			cleanedText = ev.Content
			e.handleFinalResponse(ctx, agent, ev.Content, ev.RawAssistantText)
			actionTaken = true

		case types.EventPMStartupMissingTaskList:
			e.handler.feedback(ctx, agent, "Your startup turn must contain a <task_list> block with one "+
				"task per line before you create tasks. Produce it now.")
			o.NeedsReactivation = true
			actionTaken = true

		case types.EventPMCompletionDetection:
			cleanedText = ev.Content
			e.handler.feedback(ctx, agent, "Before declaring the project complete, verify with "+
				"project_management list_tasks that every task has status done, then report to the admin.")
			o.NeedsReactivation = true
			actionTaken = true

		case types.EventError:
			e.classifyProviderError(ev.Err, &o)
		}
		if o.Err != nil {
			break
		}
	}

	if o.Err == nil {
		if e.tracker != nil {
			e.tracker.RecordSuccess(agent.ProviderName, agent.ModelID, time.Since(start))
		}
		if e.failover != nil {
			e.failover.ResetAfterSuccess(agent)
		}
	}

	if o.Err == nil && !actionTaken {
		// Text-buffer fallback: a turn that produced neither action nor
		// final text (thinking only, or nothing at all).
		e.handleUnproductiveTurn(ctx, agent, &o)
	} else if actionTaken {
		e.clearUnproductive(agent.ID)
	}

	return cleanedText, o
}

func mergeOutcome(dst *Outcome, src Outcome) {
	dst.ExecutedTool = dst.ExecutedTool || src.ExecutedTool
	dst.ThoughtProduced = dst.ThoughtProduced || src.ThoughtProduced
	dst.StateChangeRequested = dst.StateChangeRequested || src.StateChangeRequested
	dst.ProviderLevelError = dst.ProviderLevelError || src.ProviderLevelError
	dst.KeyRelatedError = dst.KeyRelatedError || src.KeyRelatedError
	dst.TriggerFailover = dst.TriggerFailover || src.TriggerFailover
	dst.NeedsReactivation = dst.NeedsReactivation || src.NeedsReactivation
	if src.Err != nil {
		dst.Err = src.Err
	}
}

func (e *Engine) classifyProviderError(err error, o *Outcome) {
	o.Err = err
	o.ProviderLevelError = true
	o.TriggerFailover = true
	if failover.Classify(err) == failover.ClassKeyRelated {
		o.KeyRelatedError = true
	}
}

// handleMalformed attempts XML recovery and falls back to rate-limited
// corrective feedback. Returns true when recovery produced executable
// calls.
func (e *Engine) handleMalformed(ctx context.Context, agent *types.Agent, ev types.StreamEvent, o *Outcome) bool {
	recovered, rewrites := tools.RecoverMalformedXML(ev.RawAssistantText, e.registry.Names())
	if rewrites > 0 {
		calls, _ := tools.ParseToolCalls(recovered, e.registry)
		if len(calls) > 0 {
			e.events.Broadcast(ui.Event{
				Type:    ui.EventXMLRecoverySuccess,
				AgentID: agent.ID,
				Payload: map[string]any{"recovered_calls": len(calls)},
			})
			toolCalls := make([]types.ToolCall, 0, len(calls))
			for i, c := range calls {
				toolCalls = append(toolCalls, types.ToolCall{
					ID:        fmt.Sprintf("recovered-%d", i),
					Name:      c.Name,
					Arguments: c.Args,
				})
			}
			e.handleToolRequests(ctx, agent, types.StreamEvent{
				Type:             types.EventToolRequests,
				ToolCalls:        toolCalls,
				RawAssistantText: recovered,
			}, o)
			return true
		}
	}

	sig := agent.ID + ":" + hashSignature(ev.Content)
	e.mu.Lock()
	last, seen := e.malformedFeedback[sig]
	now := time.Now()
	if !seen || now.Sub(last) > malformedFeedbackWindow {
		e.malformedFeedback[sig] = now
		seen = false
	}
	e.mu.Unlock()

	if !seen {
		e.handler.feedback(ctx, agent, "Your tool call could not be parsed: "+ev.Content+
			" Emit exactly one well-formed XML tool call.")
	}
	o.NeedsReactivation = true
	return false
}

func (e *Engine) handleStateChange(ctx context.Context, agent *types.Agent, requested, rawText string) {
	// Worker leaving for wait carries its deliverables in the same text.
	if agent.Kind == types.KindWorker &&
		workflow.NormalizeState(agent.Kind, requested) == workflow.StateWorkerWait {
		e.handler.AutoSaveFiles(ctx, agent, rawText)
	}

	if err := e.wf.ChangeState(agent, requested); err != nil {
		e.handler.feedback(ctx, agent, "State change rejected: "+err.Error())
		return
	}
	e.events.Broadcast(ui.Event{
		Type:    ui.EventAgentStateChange,
		AgentID: agent.ID,
		Payload: map[string]any{"state": agent.State()},
	})
	if agent.Kind == types.KindPM && agent.State() == workflow.StatePMActivateWorkers {
		e.handler.feedback(ctx, agent, ActivateWorkersDirective)
	}
}

func (e *Engine) handleToolRequests(ctx context.Context, agent *types.Agent, ev types.StreamEvent, o *Outcome) {
	assistant := types.Message{
		Role:      types.RoleAssistant,
		Content:   llm.StripThinking(ev.RawAssistantText),
		ToolCalls: ev.ToolCalls,
		Timestamp: time.Now().UTC(),
	}
	agent.AppendMessage(assistant)
	e.orch.PersistMessage(ctx, agent.ID, assistant)

	// A state-change directive may ride along with the tool calls.
	if state, ok := llm.ContainsStateRequest(ev.RawAssistantText); ok {
		e.handleStateChange(ctx, agent, state, ev.RawAssistantText)
		o.StateChangeRequested = true
	}

	executed := e.handler.ExecuteToolCalls(ctx, agent, ev.ToolCalls)
	for _, ec := range executed {
		if ec.Succeeded() {
			o.ExecutedTool = true
		}
	}
	o.NeedsReactivation = true
	e.handler.ApplyPostToolInterventions(ctx, agent, executed)
}

func (e *Engine) handleFinalResponse(ctx context.Context, agent *types.Agent, text, rawText string) {
	// Deliverable blocks in a worker's final answer are saved even when
	// the state request is missing.
	if agent.Kind == types.KindWorker {
		e.handler.AutoSaveFiles(ctx, agent, rawText)
	}

	if agent.Kind != types.KindGuardian && e.guardian.Enabled() {
		principles := renderPrinciples(e.wf.Principles(agent.Kind))
		verdict := e.guardian.Review(ctx, principles, text)
		if !verdict.OK {
			agent.ReviewPayload = &types.ReviewPayload{
				OriginalText: text,
				Concern:      verdict.Concern,
				RaisedAt:     time.Now().UTC(),
			}
			agent.SetStatus(types.StatusAwaitingUserReview)
			e.events.Broadcast(ui.Event{
				Type:    ui.EventCGConcern,
				AgentID: agent.ID,
				Payload: map[string]any{"concern": verdict.Concern, "original_text": text},
			})
			e.logger.Warn("guardian concern, agent paused",
				zap.String("agent_id", agent.ID),
				zap.String("concern", verdict.Concern))
			return
		}
	}

	msg := types.Message{
		Role:      types.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	agent.AppendMessage(msg)
	e.orch.PersistMessage(ctx, agent.ID, msg)
	e.events.Broadcast(ui.Event{
		Type:    ui.EventAgentMessage,
		AgentID: agent.ID,
		Payload: map[string]any{"content": text, "final": true},
	})
}

// handleUnproductiveTurn covers turns that ended cleanly with no action:
// a managing PM gets a bounded number of them before being forced to
// standby.
func (e *Engine) handleUnproductiveTurn(ctx context.Context, agent *types.Agent, o *Outcome) {
	if agent.Kind != types.KindPM || agent.State() != workflow.StatePMManage {
		return
	}
	e.mu.Lock()
	e.pmUnproductive[agent.ID]++
	count := e.pmUnproductive[agent.ID]
	e.mu.Unlock()

	if count >= e.cfg.PMManageUnproductiveLimit {
		e.clearUnproductive(agent.ID)
		e.handler.feedback(ctx, agent, fmt.Sprintf(
			"%d consecutive manage cycles produced no action. Moving you to standby.", count))
		if err := e.wf.ChangeState(agent, workflow.StatePMStandby); err != nil {
			e.logger.Warn("failed to force pm standby", zap.Error(err))
		}
	} else {
		o.NeedsReactivation = true
	}
}

func (e *Engine) clearUnproductive(agentID string) {
	e.mu.Lock()
	delete(e.pmUnproductive, agentID)
	e.mu.Unlock()
}

// recordHealth feeds the monitor and applies any intervention plan. The
// bootstrap admin and the guardian are never intervened on.
func (e *Engine) recordHealth(ctx context.Context, agent *types.Agent, lastResponse string, o *Outcome) {
	if e.monitor == nil {
		return
	}
	if o.MeaningfulAction() {
		e.monitor.ObserveMeaningfulAction(agent.ID)
		return
	}
	// A cycle that died in the provider produced no response text to
	// judge; counting it as an empty response would intervene on a
	// healthy agent during an outage. Failover handles these.
	if o.ProviderLevelError {
		return
	}

	assessment := e.monitor.ObserveResponse(agent.ID, lastResponse)
	stuck := e.monitor.ObserveCycleInState(agent.ID, agent.State())
	if stuck.Severity > assessment.Severity {
		assessment = stuck
	} else {
		assessment.Reasons = append(assessment.Reasons, stuck.Reasons...)
	}

	if (agent.Bootstrap && agent.Kind == types.KindAdmin) || agent.Kind == types.KindGuardian {
		return
	}

	plan := e.monitor.PlanIntervention(agent.ID, assessment)
	if plan == nil {
		return
	}

	interventionMsg := types.Message{
		Role:      types.RoleSystemIntervention,
		Content:   plan.Message,
		Timestamp: time.Now().UTC(),
	}
	if plan.ClearContext {
		history := agent.History()
		keep := health.InterventionKeepRecent
		if len(history) > keep {
			history = history[len(history)-keep:]
		}
		agent.ReplaceHistory(append(history, interventionMsg))
	} else {
		agent.AppendMessage(interventionMsg)
	}
	e.orch.PersistMessage(ctx, agent.ID, interventionMsg)

	if plan.ResetStatus {
		agent.SetStatus(types.StatusIdle)
	}
	if plan.ImmediateCycle {
		o.NeedsReactivation = false
		e.orch.ScheduleCycle(agent.ID, 0)
	}
	e.logger.Info("health intervention applied",
		zap.String("agent_id", agent.ID),
		zap.String("severity", assessment.Severity.String()))
}

// scheduleNext is the next-step scheduler: failover first, then bounded
// reactivation.
func (e *Engine) scheduleNext(ctx context.Context, agent *types.Agent, retryCount int, o *Outcome) {
	if o.TriggerFailover && e.failover != nil {
		decision := e.failover.HandleFailure(ctx, agent, o.Err)
		if decision.Rebound {
			agent.SetStatus(types.StatusIdle)
			e.orch.ScheduleCycle(agent.ID, 0)
		} else {
			e.handler.feedback(ctx, agent, "No usable model remains; pausing for operator attention.")
			agent.SetStatus(types.StatusError)
			e.events.Broadcast(ui.Event{
				Type:    ui.EventError,
				AgentID: agent.ID,
				Payload: map[string]any{"message": failover.Describe(agent.ID, decision, o.Err)},
			})
		}
		return
	}

	if !o.NeedsReactivation || agent.Status().Paused() {
		return
	}

	nextRetry := 0
	if !o.MeaningfulAction() {
		nextRetry = retryCount + 1
	}
	if nextRetry > e.cfg.MaxReactivationRetries {
		e.handler.feedback(ctx, agent, fmt.Sprintf(
			"Reactivated %d times without progress; pausing in error.", retryCount))
		agent.SetStatus(types.StatusError)
		return
	}
	agent.SetStatus(types.StatusIdle)
	e.orch.ScheduleCycle(agent.ID, nextRetry)
}

func (e *Engine) applyWorkflowResult(ctx context.Context, agent *types.Agent, wr *types.WorkflowResult) {
	if wr == nil {
		return
	}
	if wr.NewState != "" {
		if err := e.wf.ChangeState(agent, wr.NewState); err != nil {
			e.logger.Warn("workflow result state rejected", zap.Error(err))
		}
	}
	if wr.NewStatus != "" {
		agent.SetStatus(wr.NewStatus)
	}
	if wr.UIMessage != "" {
		e.events.Broadcast(ui.Event{
			Type:    ui.EventSystemNotification,
			AgentID: agent.ID,
			Payload: map[string]any{"message": wr.UIMessage},
		})
	}
	for _, id := range wr.ScheduleAgentIDs {
		e.orch.ScheduleCycle(id, 0)
	}
}

// saveThought keeps notable reasoning in the knowledge table.
func (e *Engine) saveThought(ctx context.Context, agent *types.Agent, thought string) {
	thought = strings.TrimSpace(thought)
	if e.store == nil || len(thought) < 80 {
		return
	}
	if _, err := e.store.SaveKnowledge(ctx, &storage.KnowledgeItem{
		SessionID:  e.orch.SessionID(),
		Keywords:   fmt.Sprintf("%s %s %s", agent.ID, agent.Kind, agent.State()),
		Summary:    thought,
		Importance: 0.3,
	}); err != nil {
		e.logger.Debug("failed to save thought", zap.Error(err))
	}
}

func (e *Engine) broadcastStatus(agent *types.Agent) {
	e.events.Broadcast(ui.Event{
		Type:    ui.EventAgentStatusUpdate,
		AgentID: agent.ID,
		Payload: map[string]any{"status": string(agent.Status()), "state": agent.State()},
	})
}

func renderPrinciples(principles []workflow.GovernancePrinciple) string {
	if len(principles) == 0 {
		return "(none)"
	}
	var lines []string
	for _, p := range principles {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", p.ID, p.Name, p.Text))
	}
	return strings.Join(lines, "\n")
}

func hashSignature(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}
