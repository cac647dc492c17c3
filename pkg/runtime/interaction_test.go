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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/quorum/pkg/prompts"
	"github.com/teradata-labs/quorum/pkg/tools"
	"github.com/teradata-labs/quorum/pkg/tools/builtin"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

// fakeOrch is an in-memory Orchestrator for handler tests.
type fakeOrch struct {
	agents    map[string]*types.Agent
	scheduled []string
	persisted []types.Message
	teams     map[string]map[string]bool
}

func newFakeOrch(agents ...*types.Agent) *fakeOrch {
	o := &fakeOrch{
		agents: make(map[string]*types.Agent),
		teams:  make(map[string]map[string]bool),
	}
	for _, a := range agents {
		o.agents[a.ID] = a
		if teamID := a.TeamID(); teamID != "" {
			if o.teams[teamID] == nil {
				o.teams[teamID] = make(map[string]bool)
			}
			o.teams[teamID][a.ID] = true
		}
	}
	return o
}

func (o *fakeOrch) GetAgent(id string) (*types.Agent, bool) {
	a, ok := o.agents[id]
	return a, ok
}

func (o *fakeOrch) ListAgents() []*types.Agent {
	out := make([]*types.Agent, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, a)
	}
	return out
}

func (o *fakeOrch) FindByPersona(persona string) []*types.Agent {
	var out []*types.Agent
	for _, a := range o.agents {
		if strings.EqualFold(a.Persona, persona) {
			out = append(out, a)
		}
	}
	return out
}

func (o *fakeOrch) ScheduleCycle(agentID string, retryCount int) {
	o.scheduled = append(o.scheduled, agentID)
}

func (o *fakeOrch) CreateWorkerAgent(ctx context.Context, persona, systemPrompt, creatorID string) (*types.Agent, error) {
	id := fmt.Sprintf("worker-%d", len(o.agents))
	w := types.NewAgent(id, types.KindWorker, persona)
	w.SetState(workflow.StateWorkerWait)
	o.agents[id] = w
	return w, nil
}

func (o *fakeOrch) DeleteAgent(ctx context.Context, agentID string) error {
	delete(o.agents, agentID)
	return nil
}

func (o *fakeOrch) CreateTeam(teamID string) error {
	if o.teams[teamID] != nil {
		return fmt.Errorf("team %s already exists", teamID)
	}
	o.teams[teamID] = make(map[string]bool)
	return nil
}

func (o *fakeOrch) DeleteTeam(teamID string) error {
	delete(o.teams, teamID)
	return nil
}

func (o *fakeOrch) AddAgentToTeam(agentID, teamID string) error {
	a, ok := o.agents[agentID]
	if !ok {
		return fmt.Errorf("no agent %s", agentID)
	}
	if o.teams[teamID] == nil {
		return fmt.Errorf("no team %s", teamID)
	}
	o.teams[teamID][agentID] = true
	a.SetTeamID(teamID)
	return nil
}

func (o *fakeOrch) RemoveAgentFromTeam(agentID string) error {
	a, ok := o.agents[agentID]
	if !ok {
		return fmt.Errorf("no agent %s", agentID)
	}
	delete(o.teams[a.TeamID()], agentID)
	a.SetTeamID("")
	return nil
}

func (o *fakeOrch) TeamMembers(teamID string) []string {
	var out []string
	for id := range o.teams[teamID] {
		out = append(out, id)
	}
	return out
}

func (o *fakeOrch) TeamIDs() []string {
	var out []string
	for id := range o.teams {
		out = append(out, id)
	}
	return out
}

func (o *fakeOrch) ProjectID() string { return "proj-test" }
func (o *fakeOrch) SessionID() string { return "sess-test" }

func (o *fakeOrch) PersistMessage(ctx context.Context, agentID string, msg types.Message) {
	o.persisted = append(o.persisted, msg)
}

func newTestHandler(t *testing.T, orch *fakeOrch) *Handler {
	t.Helper()
	registry := tools.NewRegistry()
	builtin.RegisterAll(registry, builtin.NewTaskStore())
	executor := tools.NewExecutor(registry, nil)
	wf := workflow.NewManager(prompts.NewMapRegistry(nil), nil, nil)
	return NewHandler(orch, executor, registry, wf, nil, DefaultConfig(), nil)
}

func lastMessage(t *testing.T, a *types.Agent) types.Message {
	t.Helper()
	h := a.History()
	require.NotEmpty(t, h)
	return h[len(h)-1]
}

func TestRouteMessage_DeliversAndWakesIdleTarget(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	worker := types.NewAgent("worker-1", types.KindWorker, "Coder")
	worker.SetStatus(types.StatusIdle)
	orch := newFakeOrch(admin, worker)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), admin, "worker-1", "please start on the parser")

	msg := lastMessage(t, worker)
	assert.Equal(t, types.RoleUser, msg.Role)
	assert.Equal(t, "[From @admin (Admin)]: please start on the parser", msg.Content)
	assert.Equal(t, []string{"worker-1"}, orch.scheduled)
	require.Len(t, orch.persisted, 1)
}

func TestRouteMessage_ResolvesUniquePersona(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	worker := types.NewAgent("worker-1", types.KindWorker, "Database Specialist")
	worker.SetStatus(types.StatusIdle)
	orch := newFakeOrch(admin, worker)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), admin, "database specialist", "check the schema")
	assert.Equal(t, []string{"worker-1"}, orch.scheduled)
}

func TestRouteMessage_UnknownTargetFeedsBackToSender(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	orch := newFakeOrch(admin)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), admin, "ghost", "hello?")

	msg := lastMessage(t, admin)
	assert.Equal(t, types.RoleFrameworkNotification, msg.Role)
	assert.Contains(t, msg.Content, "no agent matches")
	assert.Empty(t, orch.scheduled)
}

func TestRouteMessage_AmbiguousPersonaFeedsBack(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	w1 := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w2 := types.NewAgent("worker-2", types.KindWorker, "Coder")
	orch := newFakeOrch(admin, w1, w2)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), admin, "Coder", "who are you?")

	msg := lastMessage(t, admin)
	assert.Contains(t, msg.Content, "more than one agent persona")
}

func TestRouteMessage_CrossTeamBlocked(t *testing.T) {
	w1 := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w1.SetTeamID("team-1")
	w2 := types.NewAgent("worker-2", types.KindWorker, "Tester")
	w2.SetTeamID("team-2")
	orch := newFakeOrch(w1, w2)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), w1, "worker-2", "psst")

	msg := lastMessage(t, w1)
	assert.Contains(t, msg.Content, "Communication blocked")
	assert.Empty(t, w2.History())
}

func TestRouteMessage_AnyoneMayMessageAdmin(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	admin.SetStatus(types.StatusIdle)
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.SetTeamID("team-1")
	orch := newFakeOrch(admin, w)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), w, "admin", "status report")
	assert.Equal(t, []string{"admin"}, orch.scheduled)
}

func TestRouteMessage_BusyTargetGetsPriorityRecheck(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	worker := types.NewAgent("worker-1", types.KindWorker, "Coder")
	worker.SetStatus(types.StatusProcessing)
	orch := newFakeOrch(admin, worker)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), admin, "worker-1", "one more thing")

	assert.Empty(t, orch.scheduled)
	assert.True(t, worker.ConsumePriorityRecheck())
}

func TestRouteMessage_ErroredTargetIsRevived(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	worker := types.NewAgent("worker-1", types.KindWorker, "Coder")
	worker.SetStatus(types.StatusError)
	orch := newFakeOrch(admin, worker)
	h := newTestHandler(t, orch)

	h.RouteMessage(context.Background(), admin, "worker-1", "try again")

	assert.Equal(t, types.StatusIdle, worker.Status())
	assert.Equal(t, []string{"worker-1"}, orch.scheduled)
}

func TestExecuteToolCalls_SendMessageDispatches(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	worker := types.NewAgent("worker-1", types.KindWorker, "Coder")
	worker.SetStatus(types.StatusIdle)
	orch := newFakeOrch(admin, worker)
	h := newTestHandler(t, orch)

	executed := h.ExecuteToolCalls(context.Background(), admin, []types.ToolCall{{
		ID:   "tc-1",
		Name: "send_message",
		Arguments: map[string]any{
			"target":  "worker-1",
			"content": "begin work",
		},
	}})

	require.Len(t, executed, 1)
	assert.True(t, executed[0].Succeeded())
	assert.Equal(t, "[From @admin (Admin)]: begin work", lastMessage(t, worker).Content)

	// The dispatch result lands in the sender's history as a tool message.
	msg := lastMessage(t, admin)
	assert.Equal(t, types.RoleTool, msg.Role)
	assert.Contains(t, msg.Content, "Message dispatched to worker-1")
}

func TestExecuteToolCalls_UnknownToolCountsAsFailure(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	orch := newFakeOrch(admin)
	h := newTestHandler(t, orch)

	executed := h.ExecuteToolCalls(context.Background(), admin, []types.ToolCall{{
		ID:        "tc-1",
		Name:      "nonexistent_tool",
		Arguments: map[string]any{},
	}})

	require.Len(t, executed, 1)
	assert.False(t, executed[0].Succeeded())
	assert.Equal(t, 1, admin.ConsecutiveToolFailures)
}

func TestExecuteToolCalls_PMParkedAfterThreeFailures(t *testing.T) {
	pm := types.NewAgent("pm-1", types.KindPM, "PM Alpha")
	orch := newFakeOrch(pm)
	h := newTestHandler(t, orch)

	bad := types.ToolCall{ID: "tc", Name: "nonexistent_tool", Arguments: map[string]any{}}
	executed := h.ExecuteToolCalls(context.Background(), pm, []types.ToolCall{bad, bad, bad, bad})

	// The fourth call never runs; the PM parks after the third failure.
	assert.Len(t, executed, 3)
	assert.Equal(t, types.StatusError, pm.Status())
	msg := lastMessage(t, pm)
	assert.Contains(t, msg.Content, "Pausing you for review")
}

func TestPerformTeamAction_CreateAgentJoinsCreatorsTeam(t *testing.T) {
	pm := types.NewAgent("pm-1", types.KindPM, "PM Alpha")
	pm.SetState(workflow.StatePMBuildTeamTasks)
	orch := newFakeOrch(pm)
	require.NoError(t, orch.CreateTeam("team-1"))
	require.NoError(t, orch.AddAgentToTeam("pm-1", "team-1"))
	h := newTestHandler(t, orch)

	result := h.performTeamAction(context.Background(), pm, &tools.Result{
		Status: tools.StatusSignalToHandler,
		Action: "create_agent",
		ActionParams: map[string]any{
			"persona": "Frontend Dev",
		},
	})

	require.Equal(t, tools.StatusSuccess, result.Status)
	created := orch.FindByPersona("Frontend Dev")
	require.Len(t, created, 1)
	assert.Equal(t, "team-1", created[0].TeamID())
}

func TestPerformTeamAction_BootstrapAgentProtected(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	admin.Bootstrap = true
	pm := types.NewAgent("pm-1", types.KindPM, "PM Alpha")
	orch := newFakeOrch(admin, pm)
	h := newTestHandler(t, orch)

	result := h.performTeamAction(context.Background(), pm, &tools.Result{
		Status:       tools.StatusSignalToHandler,
		Action:       "delete_agent",
		ActionParams: map[string]any{"agent_id": "admin"},
	})

	assert.Equal(t, tools.StatusError, result.Status)
	assert.Contains(t, result.Message, "bootstrap agents cannot be deleted")
}
