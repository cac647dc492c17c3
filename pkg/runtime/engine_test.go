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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/quorum/pkg/health"
	"github.com/teradata-labs/quorum/pkg/prompts"
	"github.com/teradata-labs/quorum/pkg/tools"
	"github.com/teradata-labs/quorum/pkg/tools/builtin"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

func newTestEngine(t *testing.T, orch *fakeOrch) *Engine {
	t.Helper()
	registry := tools.NewRegistry()
	builtin.RegisterAll(registry, builtin.NewTaskStore())
	executor := tools.NewExecutor(registry, nil)
	wf := workflow.NewManager(prompts.NewMapRegistry(nil), nil, nil)
	handler := NewHandler(orch, executor, registry, wf, nil, DefaultConfig(), nil)
	guardian := health.NewGuardian(nil, "", prompts.NewMapRegistry(nil), nil)
	monitor := health.NewMonitor(nil)
	return NewEngine(orch, handler, wf, nil, registry, guardian, monitor,
		nil, nil, nil, nil, nil, workflow.PromptContext{}, DefaultConfig(), nil)
}

func TestHandleMalformed_FeedbackIsRateLimited(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)
	ctx := context.Background()

	ev := types.StreamEvent{
		Type:             types.EventMalformedToolCall,
		Content:          "tool send_message: missing required parameter <message>",
		RawAssistantText: "completely unrecoverable text",
	}

	var o Outcome
	recovered := e.handleMalformed(ctx, w, ev, &o)
	assert.False(t, recovered)
	assert.True(t, o.NeedsReactivation)
	require.Len(t, w.History(), 1)
	assert.Contains(t, lastMessage(t, w).Content, "could not be parsed")

	// The same signature within the window stays silent.
	e.handleMalformed(ctx, w, ev, &o)
	assert.Len(t, w.History(), 1)

	// A different error signature gets its own feedback.
	other := ev
	other.Content = "tool manage_team: missing required parameter <action>"
	e.handleMalformed(ctx, w, other, &o)
	assert.Len(t, w.History(), 2)
}

func TestHandleMalformed_RecoversMissingBracket(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)

	var o Outcome
	recovered := e.handleMalformed(context.Background(), w, types.StreamEvent{
		Type:             types.EventMalformedToolCall,
		Content:          "unparseable tool call",
		RawAssistantText: "```tool_information><action>list_tools</action></tool_information>```",
	}, &o)

	assert.True(t, recovered)
	assert.True(t, o.ExecutedTool)

	// The recovered call ran for real: a tool result is in history.
	var sawToolResult bool
	for _, m := range w.History() {
		if m.Role == types.RoleTool && m.Name == "tool_information" {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult)
}

func TestHandleStateChange_RejectedStateFeedsBack(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.SetState(workflow.StateWorkerWork)
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)

	e.handleStateChange(context.Background(), w, "pm_manage", "raw")

	assert.Equal(t, workflow.StateWorkerWork, w.State())
	assert.Contains(t, lastMessage(t, w).Content, "State change rejected")
}

func TestHandleStateChange_PMEnteringActivateWorkersGetsDirective(t *testing.T) {
	pm := types.NewAgent("pm-1", types.KindPM, "PM Alpha")
	pm.SetState(workflow.StatePMBuildTeamTasks)
	orch := newFakeOrch(pm)
	e := newTestEngine(t, orch)

	e.handleStateChange(context.Background(), pm, "pm_activate_workers", "raw")

	assert.Equal(t, workflow.StatePMActivateWorkers, pm.State())
	assert.Equal(t, ActivateWorkersDirective, lastMessage(t, pm).Content)
}

func TestHandleStateChange_WorkerToWaitAutoSaves(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.SetState(workflow.StateWorkerWork)
	w.SandboxPath = t.TempDir()
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)

	raw := "Done. <request_state state='worker_wait'/>\n" +
		"```go\n// file: main.go\npackage main\n```"
	e.handleStateChange(context.Background(), w, "worker_wait", raw)

	assert.Equal(t, workflow.StateWorkerWait, w.State())
	_, err := os.Stat(filepath.Join(w.SandboxPath, "main.go"))
	assert.NoError(t, err)
}

func TestHandleUnproductiveTurn_PMForcedToStandby(t *testing.T) {
	pm := types.NewAgent("pm-1", types.KindPM, "PM Alpha")
	pm.SetState(workflow.StatePMManage)
	orch := newFakeOrch(pm)
	e := newTestEngine(t, orch)
	ctx := context.Background()

	for i := 0; i < DefaultConfig().PMManageUnproductiveLimit-1; i++ {
		var o Outcome
		e.handleUnproductiveTurn(ctx, pm, &o)
		assert.True(t, o.NeedsReactivation, "cycle %d", i)
		assert.Equal(t, workflow.StatePMManage, pm.State())
	}

	var o Outcome
	e.handleUnproductiveTurn(ctx, pm, &o)
	assert.False(t, o.NeedsReactivation)
	assert.Equal(t, workflow.StatePMStandby, pm.State())
	assert.Contains(t, lastMessage(t, pm).Content, "Moving you to standby")
}

func TestHandleUnproductiveTurn_IgnoresNonManagingAgents(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.SetState(workflow.StateWorkerWork)
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)

	for i := 0; i < 5; i++ {
		var o Outcome
		e.handleUnproductiveTurn(context.Background(), w, &o)
		assert.False(t, o.NeedsReactivation)
	}
	assert.Empty(t, w.History())
}

func TestScheduleNext_BoundedReactivation(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)
	ctx := context.Background()

	// Meaningful work resets the retry budget.
	o := Outcome{NeedsReactivation: true, ExecutedTool: true}
	e.scheduleNext(ctx, w, 2, &o)
	assert.Equal(t, []string{"worker-1"}, orch.scheduled)

	// An unproductive reactivation burns one retry.
	orch.scheduled = nil
	o = Outcome{NeedsReactivation: true}
	e.scheduleNext(ctx, w, 0, &o)
	assert.Equal(t, []string{"worker-1"}, orch.scheduled)

	// Exceeding the budget parks the agent.
	orch.scheduled = nil
	o = Outcome{NeedsReactivation: true}
	e.scheduleNext(ctx, w, DefaultConfig().MaxReactivationRetries, &o)
	assert.Empty(t, orch.scheduled)
	assert.Equal(t, types.StatusError, w.Status())
	assert.Contains(t, lastMessage(t, w).Content, "without progress")
}

func TestScheduleNext_PausedAgentStaysParked(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.SetStatus(types.StatusAwaitingUserReview)
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)

	o := Outcome{NeedsReactivation: true, ExecutedTool: true}
	e.scheduleNext(context.Background(), w, 0, &o)
	assert.Empty(t, orch.scheduled)
}

func TestRecordHealth_CriticalInterventionClearsContext(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.SetState(workflow.StateWorkerWork)
	for i := 0; i < 10; i++ {
		w.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "older message"})
	}
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)
	ctx := context.Background()

	// Two empty responses in a row trip the critical threshold.
	var o Outcome
	e.recordHealth(ctx, w, "", &o)
	e.recordHealth(ctx, w, "", &o)

	h := w.History()
	require.Len(t, h, health.InterventionKeepRecent+1)
	last := h[len(h)-1]
	assert.Equal(t, types.RoleSystemIntervention, last.Role)
	assert.Contains(t, last.Content, health.ViolationPrefix)
	assert.Equal(t, []string{"worker-1"}, orch.scheduled)
	assert.Equal(t, types.StatusIdle, w.Status())
}

func TestRecordHealth_BootstrapAdminExempt(t *testing.T) {
	admin := types.NewAgent("admin", types.KindAdmin, "Admin")
	admin.Bootstrap = true
	orch := newFakeOrch(admin)
	e := newTestEngine(t, orch)
	ctx := context.Background()

	var o Outcome
	e.recordHealth(ctx, admin, "", &o)
	e.recordHealth(ctx, admin, "", &o)

	assert.Empty(t, admin.History())
	assert.Empty(t, orch.scheduled)
}

func TestRecordHealth_ProviderErrorNotCountedAsEmptyResponse(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.SetState(workflow.StateWorkerWork)
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)
	ctx := context.Background()

	// Provider outages leave no response text; they must not feed the
	// empty-response counter.
	failed := Outcome{
		ProviderLevelError: true,
		TriggerFailover:    true,
		Err:                errors.New("connection refused"),
	}
	e.recordHealth(ctx, w, "", &failed)
	e.recordHealth(ctx, w, "", &failed)
	assert.Empty(t, w.History())

	// One genuine empty response afterwards is still below threshold.
	var o Outcome
	e.recordHealth(ctx, w, "", &o)
	assert.Empty(t, w.History())
}

func TestRecordHealth_MeaningfulActionSkipsAssessment(t *testing.T) {
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	orch := newFakeOrch(w)
	e := newTestEngine(t, orch)
	ctx := context.Background()

	// Empty responses interleaved with tool work never accumulate.
	empty := Outcome{}
	acted := Outcome{ExecutedTool: true}
	e.recordHealth(ctx, w, "", &empty)
	e.recordHealth(ctx, w, "", &acted)
	e.recordHealth(ctx, w, "", &empty)

	assert.Empty(t, w.History())
}
