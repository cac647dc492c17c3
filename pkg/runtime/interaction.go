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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/tools"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/ui"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

// Handler routes inter-agent messages and executes parsed tool calls,
// including the post-tool workflow interventions that steer PMs through
// team building and activation.
type Handler struct {
	orch     Orchestrator
	executor *tools.Executor
	registry *tools.Registry
	wf       *workflow.Manager
	events   ui.Broadcaster
	cfg      Config
	logger   *zap.Logger
}

// NewHandler creates an interaction handler.
func NewHandler(orch Orchestrator, executor *tools.Executor, registry *tools.Registry, wf *workflow.Manager, events ui.Broadcaster, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = ui.NopBroadcaster{}
	}
	return &Handler{
		orch:     orch,
		executor: executor,
		registry: registry,
		wf:       wf,
		events:   events,
		cfg:      cfg,
		logger:   logger,
	}
}

// authLevelFor maps an agent kind to its tool privilege.
func authLevelFor(kind types.AgentKind) tools.AuthLevel {
	switch kind {
	case types.KindAdmin:
		return tools.AuthAdmin
	case types.KindPM:
		return tools.AuthPM
	default:
		return tools.AuthWorker
	}
}

// RouteMessage implements inter-agent delivery: resolve the target,
// enforce the routing policy, append to the target's history, and wake
// the target according to its status. Failures come back to the sender
// as framework feedback rather than errors.
func (h *Handler) RouteMessage(ctx context.Context, sender *types.Agent, targetIdent, content string) {
	target, ok := h.resolveTarget(targetIdent)
	if !ok {
		h.feedback(ctx, sender, fmt.Sprintf(
			"Message not delivered: no agent matches %q. Check the address book in your instructions.", targetIdent))
		return
	}
	if target == nil {
		h.feedback(ctx, sender, fmt.Sprintf(
			"Message not delivered: %q matches more than one agent persona. Use the agent id instead.", targetIdent))
		return
	}

	if !h.routingPermitted(sender, target) {
		h.feedback(ctx, sender, fmt.Sprintf(
			"Communication blocked: you may not message %s. You may contact the admin and members of your own team.", target.ID))
		return
	}

	msg := types.Message{
		Role:      types.RoleUser,
		Content:   fmt.Sprintf("[From @%s (%s)]: %s", sender.ID, sender.Persona, content),
		Timestamp: time.Now().UTC(),
	}
	target.AppendMessage(msg)
	h.orch.PersistMessage(ctx, target.ID, msg)
	h.events.Broadcast(ui.Event{
		Type:    ui.EventAgentMessage,
		AgentID: target.ID,
		Payload: map[string]any{"from": sender.ID, "content": content},
	})

	switch status := target.Status(); {
	case status == types.StatusIdle:
		h.orch.ScheduleCycle(target.ID, 0)
	case status == types.StatusError:
		target.SetStatus(types.StatusIdle)
		h.orch.ScheduleCycle(target.ID, 0)
	case status.Paused():
		// Queued only; the agent picks it up after review.
	default:
		target.SetPriorityRecheck(true)
	}
}

// resolveTarget finds an agent by exact id, then by unique persona.
// Returns (nil, true) for an ambiguous persona.
func (h *Handler) resolveTarget(ident string) (*types.Agent, bool) {
	if agent, ok := h.orch.GetAgent(ident); ok {
		return agent, true
	}
	matches := h.orch.FindByPersona(ident)
	switch len(matches) {
	case 1:
		return matches[0], true
	case 0:
		return nil, false
	default:
		return nil, true
	}
}

// routingPermitted: admin may message anyone, anyone may message the
// admin, and teammates may message each other.
func (h *Handler) routingPermitted(sender, target *types.Agent) bool {
	if sender.Kind == types.KindAdmin || target.Kind == types.KindAdmin {
		return true
	}
	return sender.TeamID() != "" && sender.TeamID() == target.TeamID()
}

// ExecutedCall is the record of one tool invocation within a turn.
type ExecutedCall struct {
	Name   string
	Args   map[string]any
	Result *tools.Result
}

// Succeeded reports whether the call ended in a success status.
func (c *ExecutedCall) Succeeded() bool {
	return c.Result != nil && c.Result.Status != tools.StatusError
}

// ExecuteToolCalls runs every parsed call for the agent's turn:
// send_message is dispatched to RouteMessage, team-management signals are
// performed here, and each result lands in history as a role=tool
// message. Returns the executed-call records for intervention analysis.
func (h *Handler) ExecuteToolCalls(ctx context.Context, agent *types.Agent, calls []types.ToolCall) []ExecutedCall {
	executed := make([]ExecutedCall, 0, len(calls))

	for _, call := range calls {
		agent.SetStatus(types.StatusExecutingTool)
		h.events.Broadcast(ui.Event{
			Type:    ui.EventAgentStatusUpdate,
			AgentID: agent.ID,
			Payload: map[string]any{"status": string(types.StatusExecutingTool), "tool": call.Name},
		})

		var result *tools.Result
		if call.Name == "send_message" {
			// Dispatched directly; no side-channel tool execution.
			target, _ := call.Arguments["target"].(string)
			content, _ := call.Arguments["content"].(string)
			h.RouteMessage(ctx, agent, target, content)
			result = tools.Successf("Message dispatched to %s.", target)
		} else {
			result = h.executor.Execute(ctx, call.Name, authLevelFor(agent.Kind), &tools.Invocation{
				AgentID:     agent.ID,
				SandboxPath: agent.SandboxPath,
				ProjectID:   h.orch.ProjectID(),
				SessionID:   h.orch.SessionID(),
				Args:        call.Arguments,
			})
		}

		if result.Status == tools.StatusSignalToHandler {
			result = h.performTeamAction(ctx, agent, result)
		}

		h.recordToolResult(ctx, agent, call, result)
		h.events.Broadcast(ui.Event{
			Type:    ui.EventToolResult,
			AgentID: agent.ID,
			Payload: map[string]any{"tool": call.Name, "status": result.Status, "message": result.Message},
		})

		ec := ExecutedCall{Name: call.Name, Args: call.Arguments, Result: result}
		executed = append(executed, ec)

		if ec.Succeeded() {
			agent.ConsecutiveToolFailures = 0
			// Assigning a task to a worker activates the worker.
			if call.Name == "project_management" && result.Assignee != "" {
				h.activateAssignee(ctx, agent, result)
			}
		} else {
			agent.ConsecutiveToolFailures++
			if agent.Kind == types.KindPM && agent.ConsecutiveToolFailures >= 3 {
				h.feedback(ctx, agent, "Three consecutive tool executions have failed. Pausing you for review.")
				agent.SetStatus(types.StatusError)
				h.logger.Warn("pm parked after consecutive tool failures", zap.String("agent_id", agent.ID))
				return executed
			}
		}
	}
	return executed
}

// recordToolResult appends the role=tool message for one execution.
func (h *Handler) recordToolResult(ctx context.Context, agent *types.Agent, call types.ToolCall, result *tools.Result) {
	content := result.Message
	if len(result.Data) > 0 {
		if data, err := json.Marshal(result.Data); err == nil {
			content = fmt.Sprintf("%s\n%s", content, data)
		}
	}
	msg := types.Message{
		Role:       types.RoleTool,
		Content:    fmt.Sprintf("[%s] %s", result.Status, content),
		Name:       call.Name,
		ToolCallID: call.ID,
		Timestamp:  time.Now().UTC(),
	}
	agent.AppendMessage(msg)
	h.orch.PersistMessage(ctx, agent.ID, msg)
}

// activateAssignee delivers a task assignment to the worker named in a
// successful modify_task result.
func (h *Handler) activateAssignee(ctx context.Context, pm *types.Agent, result *tools.Result) {
	content := fmt.Sprintf("You have been assigned task %s: %s. Move to your work state and complete it.",
		result.TaskUUID, result.Description)
	h.RouteMessage(ctx, pm, result.Assignee, content)
	if worker, ok := h.orch.GetAgent(result.Assignee); ok && worker.Kind == types.KindWorker {
		if err := h.wf.ChangeState(worker, workflow.StateWorkerWork); err != nil {
			h.logger.Warn("failed to move assigned worker to work state", zap.Error(err))
		}
	}
}

// performTeamAction executes the real work behind a team-management
// signal result.
func (h *Handler) performTeamAction(ctx context.Context, creator *types.Agent, signal *tools.Result) *tools.Result {
	params := signal.ActionParams
	str := func(key string) string {
		v, _ := params[key].(string)
		return strings.TrimSpace(v)
	}

	switch signal.Action {
	case "create_team":
		teamID := str("team_id")
		if teamID == "" {
			teamID = fmt.Sprintf("team-%s", creator.ID)
		}
		if err := h.orch.CreateTeam(teamID); err != nil {
			return tools.Errorf("failed to create team: %v", err)
		}
		if creator.TeamID() == "" {
			if err := h.orch.AddAgentToTeam(creator.ID, teamID); err != nil {
				h.logger.Warn("failed to add creator to new team", zap.Error(err))
			}
		}
		return tools.Successf("Team %s created.", teamID)

	case "delete_team":
		if err := h.orch.DeleteTeam(str("team_id")); err != nil {
			return tools.Errorf("failed to delete team: %v", err)
		}
		return tools.Successf("Team %s deleted.", str("team_id"))

	case "create_agent":
		persona := str("persona")
		if persona == "" {
			return tools.Errorf("create_agent requires a persona")
		}
		worker, err := h.orch.CreateWorkerAgent(ctx, persona, str("system_prompt"), creator.ID)
		if err != nil {
			return tools.Errorf("failed to create agent: %v", err)
		}
		// New workers join the creator's team automatically.
		if teamID := creator.TeamID(); teamID != "" {
			if err := h.orch.AddAgentToTeam(worker.ID, teamID); err != nil {
				h.logger.Warn("failed to add new worker to team", zap.Error(err))
			}
		}
		return tools.Successf("Agent %s (%s) created.", worker.ID, persona)

	case "delete_agent":
		target, ok := h.orch.GetAgent(str("agent_id"))
		if !ok {
			return tools.Errorf("no agent %q", str("agent_id"))
		}
		if target.Bootstrap {
			return tools.Errorf("bootstrap agents cannot be deleted")
		}
		if err := h.orch.DeleteAgent(ctx, target.ID); err != nil {
			return tools.Errorf("failed to delete agent: %v", err)
		}
		return tools.Successf("Agent %s deleted.", target.ID)

	case "add_agent_to_team":
		if err := h.orch.AddAgentToTeam(str("agent_id"), str("team_id")); err != nil {
			return tools.Errorf("failed to add agent to team: %v", err)
		}
		return tools.Successf("Agent %s added to team %s.", str("agent_id"), str("team_id"))

	case "remove_agent_from_team":
		if err := h.orch.RemoveAgentFromTeam(str("agent_id")); err != nil {
			return tools.Errorf("failed to remove agent from team: %v", err)
		}
		return tools.Successf("Agent %s removed from its team.", str("agent_id"))

	case "list_agents":
		var lines []string
		for _, a := range h.orch.ListAgents() {
			lines = append(lines, fmt.Sprintf("- %s (%s, %s, state=%s, team=%s)",
				a.ID, a.Persona, a.Kind, a.State(), a.TeamID()))
		}
		return &tools.Result{Status: tools.StatusSuccess, Message: "Agents:\n" + strings.Join(lines, "\n")}

	case "list_teams":
		ids := h.orch.TeamIDs()
		var lines []string
		for _, id := range ids {
			lines = append(lines, fmt.Sprintf("- %s: %s", id, strings.Join(h.orch.TeamMembers(id), ", ")))
		}
		if len(lines) == 0 {
			lines = []string{"(no teams)"}
		}
		return &tools.Result{Status: tools.StatusSuccess, Message: "Teams:\n" + strings.Join(lines, "\n")}

	case "get_agent_details":
		a, ok := h.orch.GetAgent(str("agent_id"))
		if !ok {
			return tools.Errorf("no agent %q", str("agent_id"))
		}
		return &tools.Result{
			Status: tools.StatusSuccess,
			Message: fmt.Sprintf("Agent %s: persona=%s kind=%s state=%s status=%s team=%s model=%s/%s",
				a.ID, a.Persona, a.Kind, a.State(), a.Status(), a.TeamID(), a.ProviderName, a.ModelID),
		}

	case "set_agent_state":
		target, ok := h.orch.GetAgent(str("agent_id"))
		if !ok {
			return tools.Errorf("no agent %q", str("agent_id"))
		}
		if target.Bootstrap && target.Kind == types.KindAdmin {
			return tools.Errorf("the bootstrap admin's state cannot be set externally")
		}
		if err := h.wf.ChangeState(target, str("state")); err != nil {
			return tools.Errorf("state change rejected: %v", err)
		}
		return tools.Successf("Agent %s moved to state %s.", target.ID, target.State())
	}

	return tools.Errorf("unknown team action %q", signal.Action)
}

// feedback appends a framework notification to an agent's history.
func (h *Handler) feedback(ctx context.Context, agent *types.Agent, text string) {
	msg := types.Message{
		Role:      types.RoleFrameworkNotification,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	agent.AppendMessage(msg)
	h.orch.PersistMessage(ctx, agent.ID, msg)
}
