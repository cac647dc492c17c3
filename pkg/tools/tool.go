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

// Package tools defines the tool-execution contract: tool schemas,
// registration, dispatch with authorization and argument validation, and
// parsing of the XML tool invocations agents emit in their text.
package tools

import (
	"context"
	"fmt"
)

// Result statuses. The engine never introspects tool-specific fields
// beyond these plus Action/Assignee/Description/TaskUUID.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// StatusSignalToHandler instructs the interaction handler to perform
	// the real action itself (team management needs the agent registry,
	// which tools do not hold).
	StatusSignalToHandler = "success_signal_to_handler"
)

// AuthLevel is the minimum privilege required to call a tool.
type AuthLevel int

const (
	AuthWorker AuthLevel = iota
	AuthPM
	AuthAdmin
)

// String implements fmt.Stringer.
func (l AuthLevel) String() string {
	switch l {
	case AuthWorker:
		return "worker"
	case AuthPM:
		return "pm"
	case AuthAdmin:
		return "admin"
	}
	return fmt.Sprintf("auth(%d)", int(l))
}

// Param describes one tool parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Schema declares a tool to the framework and to the LLM prompt builder.
type Schema struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Summary     string    `json:"summary"`
	Auth        AuthLevel `json:"auth_level"`
	Params      []Param   `json:"parameters"`
}

// Example renders a corrective XML invocation example for this tool, used
// in parse-error feedback.
func (s *Schema) Example() string {
	out := "<" + s.Name + ">"
	for _, p := range s.Params {
		if !p.Required {
			continue
		}
		out += fmt.Sprintf("<%s>...</%s>", p.Name, p.Name)
	}
	return out + "</" + s.Name + ">"
}

// Invocation carries the execution context a tool body receives.
type Invocation struct {
	AgentID     string
	SandboxPath string
	ProjectID   string
	SessionID   string
	Args        map[string]any
}

// StringArg returns the named argument as a string ("" when absent).
func (inv *Invocation) StringArg(name string) string {
	v, _ := inv.Args[name].(string)
	return v
}

// Result is the unified tool outcome: {status, message, data}, with the
// handler-signal extras kept out of the main record.
type Result struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// Action and ActionParams are set with StatusSignalToHandler.
	Action       string         `json:"action_to_perform,omitempty"`
	ActionParams map[string]any `json:"action_params,omitempty"`

	// Assignee, Description, and TaskUUID surface task assignments so the
	// interaction handler can activate workers.
	Assignee    string `json:"assignee,omitempty"`
	Description string `json:"description,omitempty"`
	TaskUUID    string `json:"task_uuid,omitempty"`
}

// Errorf builds an error result.
func Errorf(format string, args ...any) *Result {
	return &Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Successf builds a success result.
func Successf(format string, args ...any) *Result {
	return &Result{Status: StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

// Tool is one executable capability. Bodies are opaque to the engine; only
// the Result contract matters.
type Tool interface {
	Schema() *Schema
	Execute(ctx context.Context, inv *Invocation) (*Result, error)
}
