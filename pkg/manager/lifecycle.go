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
package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/ui"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

// Bootstrap creates the fixed agents every session starts with: the
// bootstrap admin and the guardian. Restores a prior session snapshot
// when one exists.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if err := m.EnsureSession(ctx); err != nil {
		return err
	}

	admin := types.NewAgent(BootstrapAdminID, types.KindAdmin, "Admin")
	admin.Bootstrap = true
	m.bindDefaults(admin)
	admin.SetState(workflow.StateStartup)

	guardian := types.NewAgent(GuardianID, types.KindGuardian, "Guardian")
	guardian.Bootstrap = true
	m.bindDefaults(guardian)
	guardian.SetState(workflow.StateDefault)

	m.mu.Lock()
	m.agents[admin.ID] = admin
	m.agents[guardian.ID] = guardian
	m.mu.Unlock()

	if err := m.RestoreSnapshot(ctx); err != nil {
		m.logger.Warn("snapshot restore failed, starting fresh", zap.Error(err))
	}

	m.logger.Info("agent population bootstrapped",
		zap.String("project_id", m.ProjectID()),
		zap.String("session_id", m.SessionID()))
	return nil
}

func (m *Manager) bindDefaults(agent *types.Agent) {
	agent.ProviderName = m.opts.DefaultProvider
	agent.ModelID = m.opts.DefaultModel
	agent.Temperature = m.opts.Temperature
	agent.SandboxPath = filepath.Join(m.opts.SandboxBaseDir, agent.ID)
}

// CreateWorkerAgent implements runtime.Orchestrator: dynamic worker
// creation on behalf of a PM.
func (m *Manager) CreateWorkerAgent(ctx context.Context, persona, systemPrompt, creatorID string) (*types.Agent, error) {
	creator, ok := m.GetAgent(creatorID)
	if !ok {
		return nil, fmt.Errorf("unknown creator %s", creatorID)
	}
	if creator.Kind != types.KindPM && creator.Kind != types.KindAdmin {
		return nil, fmt.Errorf("agent %s may not create agents", creatorID)
	}

	id := fmt.Sprintf("worker-%s", shortID())
	worker := types.NewAgent(id, types.KindWorker, persona)
	worker.ConfigSystemPrompt = systemPrompt
	m.bindDefaults(worker)
	worker.SetState(workflow.StateStartup)

	m.mu.Lock()
	m.agents[id] = worker
	m.mu.Unlock()

	m.logger.Info("worker created",
		zap.String("agent_id", id),
		zap.String("persona", persona),
		zap.String("creator", creatorID))
	m.events.Broadcast(ui.Event{
		Type:    ui.EventSystemNotification,
		AgentID: id,
		Payload: map[string]any{"message": fmt.Sprintf("Agent %s (%s) created by %s", id, persona, creatorID)},
	})
	return worker, nil
}

// DeleteAgent implements runtime.Orchestrator. Bootstrap agents are
// protected; team membership and health state are cleaned up.
func (m *Manager) DeleteAgent(ctx context.Context, agentID string) error {
	m.mu.Lock()
	agent, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no agent %s", agentID)
	}
	if agent.Bootstrap {
		m.mu.Unlock()
		return fmt.Errorf("bootstrap agent %s cannot be deleted", agentID)
	}
	if teamID := agent.TeamID(); teamID != "" {
		delete(m.teams[teamID], agentID)
	}
	delete(m.agents, agentID)
	m.mu.Unlock()

	if m.opts.Monitor != nil {
		m.opts.Monitor.Forget(agentID)
	}
	m.logger.Info("agent deleted", zap.String("agent_id", agentID))
	return nil
}

// CreateProjectAndPMAgent spawns a PM bound to a new project plan. The
// PM stays dormant (awaiting approval) until the user approves; an
// initial "Project Plan" task seeds its board.
func (m *Manager) CreateProjectAndPMAgent(ctx context.Context, title, plan string) (*types.Agent, error) {
	id := fmt.Sprintf("pm-%s", shortID())
	pm := types.NewAgent(id, types.KindPM, fmt.Sprintf("PM %s", title))
	m.bindDefaults(pm)
	pm.SetState(workflow.StateStartup)
	pm.AwaitingApproval = true

	planMsg := types.Message{
		Role:      types.RoleUser,
		Content:   fmt.Sprintf("[Project plan: %s]\n%s", title, plan),
		Timestamp: time.Now().UTC(),
	}
	pm.AppendMessage(planMsg)

	m.mu.Lock()
	m.agents[id] = pm
	m.mu.Unlock()

	m.PersistMessage(ctx, id, planMsg)
	if m.opts.TaskStore != nil {
		m.opts.TaskStore.Create(m.ProjectID(), fmt.Sprintf("Project Plan: %s", title))
	}

	m.events.Broadcast(ui.Event{
		Type:    ui.EventProjectPendingApproval,
		AgentID: id,
		Payload: map[string]any{"title": title, "plan": plan},
	})
	m.logger.Info("project created, awaiting approval",
		zap.String("pm_id", id),
		zap.String("title", title))
	return pm, nil
}

// ApproveProject releases an awaiting PM and schedules its first cycle.
func (m *Manager) ApproveProject(pmID string) error {
	pm, ok := m.GetAgent(pmID)
	if !ok || pm.Kind != types.KindPM {
		return fmt.Errorf("no PM agent %s", pmID)
	}
	if !pm.AwaitingApproval {
		return fmt.Errorf("PM %s is not awaiting approval", pmID)
	}
	pm.AwaitingApproval = false
	m.events.Broadcast(ui.Event{
		Type:    ui.EventProjectApproved,
		AgentID: pmID,
	})
	m.ScheduleCycle(pmID, 0)
	return nil
}

// ResolveUserReview settles a guardian concern: approve releases the
// original text as the agent's answer; reject discards it with feedback.
func (m *Manager) ResolveUserReview(ctx context.Context, agentID string, approve bool) error {
	agent, ok := m.GetAgent(agentID)
	if !ok {
		return fmt.Errorf("no agent %s", agentID)
	}
	if agent.Status() != types.StatusAwaitingUserReview || agent.ReviewPayload == nil {
		return fmt.Errorf("agent %s has no pending review", agentID)
	}

	payload := agent.ReviewPayload
	agent.ReviewPayload = nil

	if approve {
		msg := types.Message{
			Role:      types.RoleAssistant,
			Content:   payload.OriginalText,
			Timestamp: time.Now().UTC(),
		}
		agent.AppendMessage(msg)
		m.PersistMessage(ctx, agentID, msg)
	} else {
		feedback := types.Message{
			Role: types.RoleSystemIntervention,
			Content: fmt.Sprintf("Your previous response was rejected by the user after a guardian concern: %s. "+
				"Produce a compliant response instead.", payload.Concern),
			Timestamp: time.Now().UTC(),
		}
		agent.AppendMessage(feedback)
		m.PersistMessage(ctx, agentID, feedback)
	}

	agent.SetStatus(types.StatusIdle)
	m.ScheduleCycle(agentID, 0)
	return nil
}

func shortID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
