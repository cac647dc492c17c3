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
package builtin

import (
	"context"

	"github.com/teradata-labs/quorum/pkg/tools"
)

// teamActions are the sub-actions the interaction handler performs on the
// tool's behalf. The tool itself only validates and signals: agent and
// team registries live in the manager, not here.
var teamActions = map[string]bool{
	"create_agent":           true,
	"delete_agent":           true,
	"create_team":            true,
	"delete_team":            true,
	"add_agent_to_team":      true,
	"remove_agent_from_team": true,
	"list_agents":            true,
	"list_teams":             true,
	"get_agent_details":      true,
	"set_agent_state":        true,
}

// TeamTool is the manage_team tool. It returns a signal result that the
// interaction handler resolves against the live agent registry.
type TeamTool struct{}

// NewTeamTool creates the manage_team tool.
func NewTeamTool() *TeamTool {
	return &TeamTool{}
}

// Schema implements tools.Tool.
func (t *TeamTool) Schema() *tools.Schema {
	return &tools.Schema{
		Name:        "manage_team",
		Summary:     "Create and manage agents and teams",
		Description: "Manages the agent population: create or delete agents and teams, move agents between teams, inspect agents, or set an agent's workflow state. Request usage with tool_information get_info before first use.",
		Auth:        tools.AuthPM,
		Params: []tools.Param{
			{Name: "action", Type: "string", Required: true, Description: "One of: create_agent, delete_agent, create_team, delete_team, add_agent_to_team, remove_agent_from_team, list_agents, list_teams, get_agent_details, set_agent_state"},
			{Name: "agent_id", Type: "string", Required: false, Description: "Target agent id"},
			{Name: "team_id", Type: "string", Required: false, Description: "Target team id"},
			{Name: "persona", Type: "string", Required: false, Description: "Display name for create_agent"},
			{Name: "state", Type: "string", Required: false, Description: "State for set_agent_state"},
		},
	}
}

// Execute implements tools.Tool.
func (t *TeamTool) Execute(ctx context.Context, inv *tools.Invocation) (*tools.Result, error) {
	action := inv.StringArg("action")
	if !teamActions[action] {
		return tools.Errorf("unknown manage_team action: %s", action), nil
	}

	params := make(map[string]any, len(inv.Args))
	for k, v := range inv.Args {
		if k == "action" {
			continue
		}
		params[k] = v
	}

	return &tools.Result{
		Status:       tools.StatusSignalToHandler,
		Action:       action,
		ActionParams: params,
	}, nil
}
