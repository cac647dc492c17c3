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

// MessageTool is the send_message schema. The interaction handler
// intercepts send_message and routes it directly; this body only runs if
// a call somehow bypasses interception, and signals the handler.
type MessageTool struct{}

// NewMessageTool creates the send_message tool.
func NewMessageTool() *MessageTool {
	return &MessageTool{}
}

// Schema implements tools.Tool.
func (t *MessageTool) Schema() *tools.Schema {
	return &tools.Schema{
		Name:        "send_message",
		Summary:     "Send a message to another agent",
		Description: "Delivers a message to another agent by id or persona. You may only message the admin, agents on your team, or (if you are the admin) anyone.",
		Auth:        tools.AuthWorker,
		Params: []tools.Param{
			{Name: "target", Type: "string", Required: true, Description: "Target agent id or persona"},
			{Name: "content", Type: "string", Required: true, Description: "Message text"},
		},
	}
}

// Execute implements tools.Tool.
func (t *MessageTool) Execute(ctx context.Context, inv *tools.Invocation) (*tools.Result, error) {
	return &tools.Result{
		Status: tools.StatusSignalToHandler,
		Action: "send_message",
		ActionParams: map[string]any{
			"target":  inv.StringArg("target"),
			"content": inv.StringArg("content"),
		},
	}, nil
}

// RegisterAll registers the fixed builtin tool set.
func RegisterAll(registry *tools.Registry, taskStore *TaskStore) {
	registry.Register(NewInfoTool(registry))
	registry.Register(NewTeamTool())
	registry.Register(NewProjectTool(taskStore))
	registry.Register(NewFileSystemTool())
	registry.Register(NewMessageTool())
}
