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
package health

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveResponse_EmptyEscalatesToCritical(t *testing.T) {
	m := NewMonitor(nil)

	a := m.ObserveResponse("worker-1", "")
	assert.Equal(t, SeverityNone, a.Severity)

	a = m.ObserveResponse("worker-1", "   ")
	require.Equal(t, SeverityCritical, a.Severity)
	assert.Contains(t, a.Reasons[0], "2 consecutive empty responses")

	plan := m.PlanIntervention("worker-1", a)
	require.NotNil(t, plan)
	assert.True(t, strings.HasPrefix(plan.Message, ViolationPrefix))
	assert.True(t, plan.ClearContext)
	assert.True(t, plan.ResetStatus)
	assert.True(t, plan.ImmediateCycle)
}

func TestObserveResponse_NonEmptyResetsEmptyCount(t *testing.T) {
	m := NewMonitor(nil)

	m.ObserveResponse("worker-1", "")
	m.ObserveResponse("worker-1", "making progress on the parser module right now")
	a := m.ObserveResponse("worker-1", "")
	assert.Equal(t, SeverityNone, a.Severity)
}

func TestObserveResponse_IdenticalWithinWindow(t *testing.T) {
	m := NewMonitor(nil)
	text := "I will now proceed to analyze the task list as instructed."

	a := m.ObserveResponse("pm-1", text)
	assert.Equal(t, SeverityNone, a.Severity)

	a = m.ObserveResponse("pm-1", text)
	assert.Equal(t, SeverityNone, a.Severity)

	a = m.ObserveResponse("pm-1", text)
	require.Equal(t, SeverityCritical, a.Severity)
	assert.Contains(t, a.Reasons[0], "identical responses")
}

func TestObserveResponse_IdenticalOutsideWindowIsFine(t *testing.T) {
	m := NewMonitor(nil)
	repeat := strings.Repeat("status update: all workers are progressing normally. ", 2)

	m.ObserveResponse("pm-1", repeat)
	m.ObserveResponse("pm-1", "first distinct filler response with enough length here")
	m.ObserveResponse("pm-1", "second distinct filler response with enough length here")
	m.ObserveResponse("pm-1", "third distinct filler response with enough length here")

	// The original hash has aged out of the comparison window.
	a := m.ObserveResponse("pm-1", repeat)
	assert.Equal(t, SeverityNone, a.Severity)
}

func TestObserveResponse_MinimalWarning(t *testing.T) {
	m := NewMonitor(nil)

	m.ObserveResponse("worker-1", "ok.")
	m.ObserveResponse("worker-1", "done!")
	a := m.ObserveResponse("worker-1", "yes")
	require.Equal(t, SeverityWarning, a.Severity)
	assert.Contains(t, a.Reasons[0], "minimal responses")

	plan := m.PlanIntervention("worker-1", a)
	require.NotNil(t, plan)
	assert.False(t, plan.ClearContext)
	assert.True(t, plan.ResetStatus)
	assert.Contains(t, plan.Message, "[Constitutional Guardian] Guidance")
}

func TestObserveCycleInState_StuckWarning(t *testing.T) {
	m := NewMonitor(nil)

	for i := 0; i < StuckStateThreshold-1; i++ {
		a := m.ObserveCycleInState("pm-1", "manage")
		assert.Equal(t, SeverityNone, a.Severity, "cycle %d", i)
	}
	a := m.ObserveCycleInState("pm-1", "manage")
	require.Equal(t, SeverityWarning, a.Severity)
	assert.Contains(t, a.Reasons[0], "manage")

	// A state change resets the counter.
	a = m.ObserveCycleInState("pm-1", "standby")
	assert.Equal(t, SeverityNone, a.Severity)
}

func TestObserveMeaningfulAction_ResetsCounters(t *testing.T) {
	m := NewMonitor(nil)

	m.ObserveResponse("worker-1", "")
	m.ObserveMeaningfulAction("worker-1")
	a := m.ObserveResponse("worker-1", "")
	assert.Equal(t, SeverityNone, a.Severity)
}

func TestPlanIntervention_NoneReturnsNil(t *testing.T) {
	m := NewMonitor(nil)
	assert.Nil(t, m.PlanIntervention("worker-1", Assessment{}))
}

func TestPlanIntervention_Logged(t *testing.T) {
	m := NewMonitor(nil)

	m.ObserveResponse("worker-1", "")
	a := m.ObserveResponse("worker-1", "")
	require.NotNil(t, m.PlanIntervention("worker-1", a))

	log := m.Interventions()
	require.Len(t, log, 1)
	assert.Equal(t, "worker-1", log[0].AgentID)
	assert.Equal(t, "critical", log[0].Severity)
}

func TestForget_DropsState(t *testing.T) {
	m := NewMonitor(nil)

	m.ObserveResponse("worker-1", "")
	m.Forget("worker-1")
	a := m.ObserveResponse("worker-1", "")
	assert.Equal(t, SeverityNone, a.Severity)
}
