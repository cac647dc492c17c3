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
package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_UnknownTool(t *testing.T) {
	e := NewExecutor(testRegistry(), nil)

	res := e.Execute(context.Background(), "no_such_tool", AuthAdmin, &Invocation{})
	require.NotNil(t, res)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "unknown tool")
	assert.Contains(t, res.Message, "send_message")
}

func TestExecute_AuthorizationDenied(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{schema: &Schema{Name: "manage_team", Auth: AuthPM}})
	e := NewExecutor(r, nil)

	res := e.Execute(context.Background(), "manage_team", AuthWorker, &Invocation{})
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "requires pm authorization")

	res = e.Execute(context.Background(), "manage_team", AuthPM, &Invocation{})
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestExecute_MissingRequiredArg(t *testing.T) {
	e := NewExecutor(testRegistry(), nil)

	res := e.Execute(context.Background(), "send_message", AuthWorker, &Invocation{
		Args: map[string]any{"recipient": "admin"},
	})
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "invalid arguments")
	assert.Contains(t, res.Message, "<message>")
}

func TestExecute_ToolErrorBecomesErrorResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		schema: &Schema{Name: "flaky"},
		run: func(ctx context.Context, inv *Invocation) (*Result, error) {
			return nil, errors.New("disk full")
		},
	})
	e := NewExecutor(r, nil)

	res := e.Execute(context.Background(), "flaky", AuthWorker, &Invocation{})
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "disk full")
}

func TestExecute_PanicContained(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		schema: &Schema{Name: "boom"},
		run: func(ctx context.Context, inv *Invocation) (*Result, error) {
			panic("nil map write")
		},
	})
	e := NewExecutor(r, nil)

	res := e.Execute(context.Background(), "boom", AuthAdmin, &Invocation{})
	require.NotNil(t, res)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "panicked")
}

func TestExecute_StatsRecorded(t *testing.T) {
	e := NewExecutor(testRegistry(), nil)

	e.Execute(context.Background(), "tool_information", AuthWorker, &Invocation{
		Args: map[string]any{"action": "list_tools"},
	})
	e.Execute(context.Background(), "tool_information", AuthWorker, &Invocation{})

	stats := e.Stats()
	assert.Equal(t, int64(2), stats["tool_information"].Calls)
	assert.Equal(t, int64(1), stats["tool_information"].Successes)
	assert.Equal(t, int64(1), stats["tool_information"].Failures)
}

func TestSchemasFor_FiltersByAuthLevel(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{schema: &Schema{Name: "worker_tool", Auth: AuthWorker}})
	r.Register(&stubTool{schema: &Schema{Name: "pm_tool", Auth: AuthPM}})
	r.Register(&stubTool{schema: &Schema{Name: "admin_tool", Auth: AuthAdmin}})

	names := func(schemas []*Schema) []string {
		var out []string
		for _, s := range schemas {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Equal(t, []string{"worker_tool"}, names(r.SchemasFor(AuthWorker)))
	assert.Equal(t, []string{"pm_tool", "worker_tool"}, names(r.SchemasFor(AuthPM)))
	assert.Len(t, r.SchemasFor(AuthAdmin), 3)
}
