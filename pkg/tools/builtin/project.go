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
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/teradata-labs/quorum/pkg/tools"
)

// Task is one project task.
type Task struct {
	UUID        string `json:"uuid"`
	ProjectID   string `json:"project_id"`
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	Status      string `json:"status"`
}

// TaskStore holds project tasks in memory. Safe for concurrent use.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task)}
}

// Create adds a task and returns it.
func (s *TaskStore) Create(projectID, description string) *Task {
	t := &Task{
		UUID:        uuid.NewString(),
		ProjectID:   projectID,
		Description: description,
		Status:      "pending",
	}
	s.mu.Lock()
	s.tasks[t.UUID] = t
	s.mu.Unlock()
	return t
}

// List returns the tasks for a project in no particular order.
func (s *TaskStore) List(projectID string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// Get returns a task copy by uuid.
func (s *TaskStore) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Modify updates assignee and/or status of a task.
func (s *TaskStore) Modify(id, assignee, status string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	if assignee != "" {
		t.Assignee = assignee
	}
	if status != "" {
		t.Status = status
	}
	cp := *t
	return &cp, true
}

// ProjectTool is the project_management tool: task CRUD scoped to the
// active project.
type ProjectTool struct {
	store *TaskStore
}

// NewProjectTool creates the project_management tool.
func NewProjectTool(store *TaskStore) *ProjectTool {
	return &ProjectTool{store: store}
}

// Schema implements tools.Tool.
func (t *ProjectTool) Schema() *tools.Schema {
	return &tools.Schema{
		Name:        "project_management",
		Summary:     "Create, list, and assign project tasks",
		Description: "Manages the task list of the active project. Actions: create_task (description), list_tasks, modify_task (task_uuid plus assignee and/or status).",
		Auth:        tools.AuthPM,
		Params: []tools.Param{
			{Name: "action", Type: "string", Required: true, Description: "create_task, list_tasks, or modify_task"},
			{Name: "description", Type: "string", Required: false, Description: "Task description (create_task)"},
			{Name: "task_uuid", Type: "string", Required: false, Description: "Task to modify"},
			{Name: "assignee", Type: "string", Required: false, Description: "Agent id to assign"},
			{Name: "status", Type: "string", Required: false, Description: "New status (pending, in_progress, done)"},
		},
	}
}

// Execute implements tools.Tool.
func (t *ProjectTool) Execute(ctx context.Context, inv *tools.Invocation) (*tools.Result, error) {
	switch inv.StringArg("action") {
	case "create_task":
		desc := inv.StringArg("description")
		if desc == "" {
			return tools.Errorf("create_task requires description"), nil
		}
		task := t.store.Create(inv.ProjectID, desc)
		return &tools.Result{
			Status:   tools.StatusSuccess,
			Message:  fmt.Sprintf("Task created: %s", task.UUID),
			TaskUUID: task.UUID,
			Data:     map[string]any{"task": task},
		}, nil

	case "list_tasks":
		list := t.store.List(inv.ProjectID)
		var lines []string
		items := make([]any, 0, len(list))
		for _, task := range list {
			assignee := task.Assignee
			if assignee == "" {
				assignee = "unassigned"
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s (%s, %s)", task.UUID, task.Description, task.Status, assignee))
			items = append(items, task)
		}
		if len(lines) == 0 {
			lines = append(lines, "(no tasks)")
		}
		return &tools.Result{
			Status:  tools.StatusSuccess,
			Message: "Project tasks:\n" + strings.Join(lines, "\n"),
			Data:    map[string]any{"tasks": items},
		}, nil

	case "modify_task":
		id := inv.StringArg("task_uuid")
		if id == "" {
			id = inv.StringArg("task_id")
		}
		task, ok := t.store.Modify(id, inv.StringArg("assignee"), inv.StringArg("status"))
		if !ok {
			return tools.Errorf("unknown task_uuid: %s. Use list_tasks to obtain valid UUIDs", id), nil
		}
		return &tools.Result{
			Status:      tools.StatusSuccess,
			Message:     fmt.Sprintf("Task %s updated", task.UUID),
			TaskUUID:    task.UUID,
			Assignee:    task.Assignee,
			Description: task.Description,
			Data:        map[string]any{"task": task},
		}, nil

	default:
		return tools.Errorf("unknown project_management action: %s", inv.StringArg("action")), nil
	}
}
