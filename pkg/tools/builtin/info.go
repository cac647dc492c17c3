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

// Package builtin provides the fixed tool set registered at startup:
// tool discovery, team management (via handler signal), project task
// management, the sandboxed file-system tool, and the send_message schema.
package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/teradata-labs/quorum/pkg/tools"
)

// InfoTool exposes tool discovery to agents: list_tools and get_info.
type InfoTool struct {
	registry *tools.Registry
}

// NewInfoTool creates the tool_information tool over the registry.
func NewInfoTool(registry *tools.Registry) *InfoTool {
	return &InfoTool{registry: registry}
}

// Schema implements tools.Tool.
func (t *InfoTool) Schema() *tools.Schema {
	return &tools.Schema{
		Name:        "tool_information",
		Summary:     "Discover available tools and their usage",
		Description: "Lists the tools you may call, or returns detailed usage for one tool. Use action=list_tools first, then action=get_info with tool_name (and optionally sub_action) for details.",
		Auth:        tools.AuthWorker,
		Params: []tools.Param{
			{Name: "action", Type: "string", Required: true, Description: "list_tools or get_info"},
			{Name: "tool_name", Type: "string", Required: false, Description: "Tool to describe (get_info)"},
			{Name: "sub_action", Type: "string", Required: false, Description: "Sub-action of the tool to describe"},
		},
	}
}

// Execute implements tools.Tool.
func (t *InfoTool) Execute(ctx context.Context, inv *tools.Invocation) (*tools.Result, error) {
	switch inv.StringArg("action") {
	case "list_tools":
		var lines []string
		for _, s := range t.registry.Schemas() {
			lines = append(lines, fmt.Sprintf("- %s: %s", s.Name, s.Summary))
		}
		return &tools.Result{
			Status:  tools.StatusSuccess,
			Message: "Available tools:\n" + strings.Join(lines, "\n"),
		}, nil

	case "get_info":
		name := inv.StringArg("tool_name")
		tool, ok := t.registry.Get(name)
		if !ok {
			return tools.Errorf("unknown tool: %s", name), nil
		}
		s := tool.Schema()
		var params []string
		for _, p := range s.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s, %s): %s", p.Name, p.Type, req, p.Description))
		}
		msg := fmt.Sprintf("%s: %s\nParameters:\n%s\nExample:\n%s",
			s.Name, s.Description, strings.Join(params, "\n"), s.Example())
		if sub := inv.StringArg("sub_action"); sub != "" {
			msg = fmt.Sprintf("Usage for %s action=%s:\n%s", s.Name, sub, msg)
		}
		return &tools.Result{Status: tools.StatusSuccess, Message: msg}, nil

	default:
		return tools.Errorf("unknown action %q, expected list_tools or get_info", inv.StringArg("action")), nil
	}
}
