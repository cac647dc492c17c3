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
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/tools"
	"github.com/teradata-labs/quorum/pkg/tools/builtin"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/ui"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

// ActivateWorkersDirective is injected when a PM enters activate_workers.
const ActivateWorkersDirective = "You are now in activate_workers. First call " +
	"project_management with action list_tasks to see the unassigned tasks."

// ApplyPostToolInterventions injects the follow-up directives that walk a
// PM through its scripted states. Only turns with exactly one executed
// call are steered; multi-call turns are left to the model.
func (h *Handler) ApplyPostToolInterventions(ctx context.Context, agent *types.Agent, executed []ExecutedCall) {
	if agent.Kind != types.KindPM || len(executed) != 1 {
		return
	}
	call := executed[0]

	if !call.Succeeded() {
		if agent.State() == workflow.StatePMActivateWorkers {
			h.feedback(ctx, agent, "The tool call failed: "+call.Result.Message+
				" Call project_management list_tasks and retry with a valid task UUID.")
		}
		return
	}

	switch agent.State() {
	case workflow.StatePMBuildTeamTasks:
		h.buildTeamProgression(ctx, agent, call)
	case workflow.StatePMActivateWorkers:
		h.activateWorkersProgression(ctx, agent, call)
	case workflow.StatePMManage:
		h.manageProgression(ctx, agent, call)
	}
}

// buildTeamProgression scripts the create_team → get_info → create_agent
// ×N → activate_workers sequence.
func (h *Handler) buildTeamProgression(ctx context.Context, pm *types.Agent, call ExecutedCall) {
	action, _ := call.Args["action"].(string)

	switch {
	case call.Name == "manage_team" && action == "create_team":
		h.feedback(ctx, pm, "Team created. Next, request usage details: call tool_information with "+
			"action get_info, tool_name manage_team, sub_action create_agent.")

	case call.Name == "tool_information" && action == "get_info" && isCreateAgentInfo(call.Args):
		pm.CreatedAgentsForBuild = 0
		h.feedback(ctx, pm, "You now know how to create agents. Create worker agent #1 with "+
			"manage_team create_agent, giving it a persona suited to the project plan.")

	case call.Name == "manage_team" && action == "create_agent":
		pm.CreatedAgentsForBuild++
		target := pm.TargetWorkersForBuild
		if target <= 0 {
			target = h.cfg.MaxWorkersPerPM
		}
		if pm.CreatedAgentsForBuild >= target {
			h.feedback(ctx, pm, fmt.Sprintf(
				"Your team of %d worker(s) is complete. Emit <request_state state='pm_activate_workers'/> now.",
				pm.CreatedAgentsForBuild))
		} else {
			h.feedback(ctx, pm, fmt.Sprintf(
				"Worker #%d created. Create worker agent #%d with manage_team create_agent.",
				pm.CreatedAgentsForBuild, pm.CreatedAgentsForBuild+1))
		}
	}
}

func isCreateAgentInfo(args map[string]any) bool {
	toolName, _ := args["tool_name"].(string)
	sub, _ := args["sub_action"].(string)
	return toolName == "manage_team" && sub == "create_agent"
}

// activateWorkersProgression scripts list_tasks → assign each task →
// report kickoff to the admin.
func (h *Handler) activateWorkersProgression(ctx context.Context, pm *types.Agent, call ExecutedCall) {
	action, _ := call.Args["action"].(string)
	if call.Name != "project_management" {
		return
	}

	switch action {
	case "list_tasks":
		pm.PendingTasksSummary = unassignedSummary(call.Result.Data)
		h.feedback(ctx, pm, fmt.Sprintf(
			"%d unassigned task(s) recorded. Call manage_team with action list_agents to see your workers, "+
				"then assign each task with project_management modify_task.", len(pm.PendingTasksSummary)))

	case "modify_task":
		remaining := pm.PendingTasksSummary[:0]
		for _, t := range pm.PendingTasksSummary {
			if t.UUID != call.Result.TaskUUID {
				remaining = append(remaining, t)
			}
		}
		pm.PendingTasksSummary = remaining

		if len(remaining) == 0 {
			h.feedback(ctx, pm, "All tasks are assigned. Report to the admin with send_message that "+
				"project kickoff is complete, then continue to your manage duties.")
			return
		}
		var lines []string
		for _, t := range remaining {
			lines = append(lines, fmt.Sprintf("- [%s] %s", t.UUID, t.Description))
		}
		h.feedback(ctx, pm, "Remaining unassigned tasks:\n"+strings.Join(lines, "\n")+
			"\nAssign the next one with project_management modify_task.")
	}
}

// manageProgression nudges a managing PM after its review calls.
func (h *Handler) manageProgression(ctx context.Context, pm *types.Agent, call ExecutedCall) {
	action, _ := call.Args["action"].(string)

	switch {
	case call.Name == "project_management" && action == "list_tasks":
		h.feedback(ctx, pm, "Analyze the task list above. Unblock stalled workers with send_message, "+
			"mark finished work done with modify_task, and report overall progress to the admin.")

	case call.Name == "send_message":
		content, _ := call.Args["content"].(string)
		target, _ := call.Args["target"].(string)
		if isAdminTarget(h.orch, target) && strings.Contains(strings.ToLower(content), "is complete") {
			h.feedback(ctx, pm, "The project is reported complete. Emit <request_state state='pm_standby'/> now.")
		}
	}
}

func isAdminTarget(orch Orchestrator, ident string) bool {
	if agent, ok := orch.GetAgent(ident); ok {
		return agent.Kind == types.KindAdmin
	}
	for _, a := range orch.FindByPersona(ident) {
		if a.Kind == types.KindAdmin {
			return true
		}
	}
	return false
}

// unassignedSummary extracts the unassigned tasks from a list_tasks
// result payload.
func unassignedSummary(data map[string]any) []types.TaskSummary {
	items, _ := data["tasks"].([]any)
	var out []types.TaskSummary
	for _, item := range items {
		task, ok := item.(*builtin.Task)
		if !ok || task.Assignee != "" {
			continue
		}
		out = append(out, types.TaskSummary{UUID: task.UUID, Description: task.Description})
	}
	return out
}

// fileBlockRe matches a fenced code block whose first line is a filename
// comment: "# file: x", "// file: x", or "<!-- file: x -->".
var fileBlockRe = regexp.MustCompile(
	"(?s)```[a-zA-Z0-9]*\\n(?:#|//|<!--)\\s*file:\\s*([^\\n]+?)\\s*(?:-->)?\\n(.*?)```")

// AutoSaveFiles scans a worker's final response for file-tagged code
// blocks and writes each one through the file-system tool, notifying the
// UI per saved file. Returns the number of files written.
func (h *Handler) AutoSaveFiles(ctx context.Context, worker *types.Agent, text string) int {
	saved := 0
	for _, m := range fileBlockRe.FindAllStringSubmatch(text, -1) {
		filepath := strings.TrimSpace(m[1])
		content := m[2]
		result := h.executor.Execute(ctx, "file_system", authLevelFor(worker.Kind), &tools.Invocation{
			AgentID:     worker.ID,
			SandboxPath: worker.SandboxPath,
			ProjectID:   h.orch.ProjectID(),
			SessionID:   h.orch.SessionID(),
			Args: map[string]any{
				"action":   "write_file",
				"filepath": filepath,
				"content":  content,
			},
		})
		if result.Status != tools.StatusSuccess {
			h.logger.Warn("auto-save failed",
				zap.String("agent_id", worker.ID),
				zap.String("filepath", filepath),
				zap.String("error", result.Message))
			continue
		}
		saved++
		note := "Framework auto-saved file: " + filepath
		h.feedback(ctx, worker, note)
		h.events.Broadcast(ui.Event{
			Type:    ui.EventSystemNotification,
			AgentID: worker.ID,
			Payload: map[string]any{"message": note},
		})
	}
	return saved
}
