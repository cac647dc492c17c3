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

// Package manager owns the process-wide agent registry: scheduling,
// dynamic agent lifecycle, team state, the session, and the periodic
// timers. It implements runtime.Orchestrator for the cycle engine.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/failover"
	"github.com/teradata-labs/quorum/pkg/health"
	"github.com/teradata-labs/quorum/pkg/llm"
	"github.com/teradata-labs/quorum/pkg/perf"
	"github.com/teradata-labs/quorum/pkg/runtime"
	"github.com/teradata-labs/quorum/pkg/storage"
	"github.com/teradata-labs/quorum/pkg/summarizer"
	"github.com/teradata-labs/quorum/pkg/tools"
	"github.com/teradata-labs/quorum/pkg/tools/builtin"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/ui"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

// BootstrapAdminID is the fixed id of the bootstrap admin agent.
const BootstrapAdminID = "admin"

// GuardianID is the fixed id of the guardian agent.
const GuardianID = "guardian"

// Options bundles the services and knobs the manager is built from.
type Options struct {
	Store        *storage.Store
	Events       ui.Broadcaster
	Workflow     *workflow.Manager
	Factory      *llm.Factory
	ToolRegistry *tools.Registry
	Executor     *tools.Executor
	TaskStore    *builtin.TaskStore
	Guardian     *health.Guardian
	Monitor      *health.Monitor
	Cleaner      *health.Cleaner
	Summarizer   *summarizer.Summarizer
	Failover     *failover.Handler
	Tracker      *perf.Tracker

	Runtime runtime.Config

	// DefaultProvider and DefaultModel are the initial binding for every
	// new agent.
	DefaultProvider string
	DefaultModel    string
	Temperature     float64

	// SandboxBaseDir roots the per-agent tool sandboxes;
	// SnapshotBaseDir roots the session snapshot files.
	SandboxBaseDir  string
	SnapshotBaseDir string

	PMManageCheckInterval time.Duration

	ProjectName string
	SessionName string
}

// Manager is the orchestrator singleton.
type Manager struct {
	opts   Options
	logger *zap.Logger

	engine  *runtime.Engine
	handler *runtime.Handler
	events  ui.Broadcaster

	mu        sync.RWMutex
	agents    map[string]*types.Agent
	teams     map[string]map[string]bool
	inFlight  map[string]bool
	projectID string
	sessionID string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the manager and wires the interaction handler and cycle
// engine around it.
func New(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = ui.NopBroadcaster{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:     opts,
		logger:   logger,
		events:   opts.Events,
		agents:   make(map[string]*types.Agent),
		teams:    make(map[string]map[string]bool),
		inFlight: make(map[string]bool),
		baseCtx:  ctx,
		cancel:   cancel,
	}

	m.handler = runtime.NewHandler(m, opts.Executor, opts.ToolRegistry, opts.Workflow, opts.Events, opts.Runtime, logger)
	m.engine = runtime.NewEngine(m, m.handler, opts.Workflow, opts.Factory, opts.ToolRegistry,
		opts.Guardian, opts.Monitor, opts.Summarizer, opts.Failover, opts.Tracker, opts.Store,
		opts.Events, workflow.PromptContext{ProjectName: opts.ProjectName, SessionName: opts.SessionName},
		opts.Runtime, logger)

	opts.Workflow.SetStateChangeListener(func(agent *types.Agent, from, to string) {
		m.events.Broadcast(ui.Event{
			Type:    ui.EventAgentStateChange,
			AgentID: agent.ID,
			Payload: map[string]any{"from": from, "to": to},
		})
	})
	return m
}

// Handler exposes the interaction handler (user-review resolution needs
// it).
func (m *Manager) Handler() *runtime.Handler { return m.handler }

// GetAgent implements runtime.Orchestrator.
func (m *Manager) GetAgent(id string) (*types.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// ListAgents implements runtime.Orchestrator and workflow.Population.
func (m *Manager) ListAgents() []*types.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByPersona implements runtime.Orchestrator.
func (m *Manager) FindByPersona(persona string) []*types.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Agent
	for _, a := range m.agents {
		if strings.EqualFold(a.Persona, persona) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ProjectID implements runtime.Orchestrator.
func (m *Manager) ProjectID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projectID
}

// SessionID implements runtime.Orchestrator.
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// PersistMessage implements runtime.Orchestrator.
func (m *Manager) PersistMessage(ctx context.Context, agentID string, msg types.Message) {
	if m.opts.Store == nil {
		return
	}
	toolCalls := ""
	if len(msg.ToolCalls) > 0 {
		if data, err := json.Marshal(msg.ToolCalls); err == nil {
			toolCalls = string(data)
		}
	}
	if _, err := m.opts.Store.LogInteraction(ctx, &storage.Interaction{
		SessionID:     m.SessionID(),
		AgentID:       agentID,
		Role:          msg.Role,
		Content:       msg.Content,
		ToolCallsJSON: toolCalls,
		Timestamp:     msg.Timestamp,
	}); err != nil {
		m.logger.Warn("failed to persist message", zap.String("agent_id", agentID), zap.Error(err))
	}
}

// ScheduleCycle implements runtime.Orchestrator: at most one in-flight
// cycle per agent; calls for busy or paused agents are dropped.
func (m *Manager) ScheduleCycle(agentID string, retryCount int) {
	agent, ok := m.GetAgent(agentID)
	if !ok {
		m.logger.Warn("schedule requested for unknown agent", zap.String("agent_id", agentID))
		return
	}
	if agent.AwaitingApproval || agent.Status().Paused() {
		return
	}

	m.mu.Lock()
	if m.inFlight[agentID] {
		m.mu.Unlock()
		agent.SetPriorityRecheck(true)
		return
	}
	m.inFlight[agentID] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.inFlight, agentID)
			m.mu.Unlock()
		}()
		outcome := m.engine.RunCycle(m.baseCtx, agent, retryCount)
		if outcome.Err != nil {
			m.logger.Warn("cycle ended with error",
				zap.String("agent_id", agentID),
				zap.Error(outcome.Err))
		}
	}()
}

// HandleUserMessage appends user input to the bootstrap admin's history
// and wakes the admin.
func (m *Manager) HandleUserMessage(ctx context.Context, text string) error {
	admin, ok := m.GetAgent(BootstrapAdminID)
	if !ok {
		return fmt.Errorf("bootstrap admin not initialized")
	}

	msg := types.Message{
		Role:      types.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	admin.AppendMessage(msg)
	m.PersistMessage(ctx, admin.ID, msg)

	if admin.Status() == types.StatusIdle {
		m.ScheduleCycle(admin.ID, 0)
	} else {
		admin.SetPriorityRecheck(true)
		m.events.Broadcast(ui.Event{
			Type:    ui.EventSystemNotification,
			AgentID: admin.ID,
			Payload: map[string]any{"message": "Message queued; the admin is busy."},
		})
	}
	return nil
}

// CreateTeam implements runtime.Orchestrator.
func (m *Manager) CreateTeam(teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.teams[teamID]; exists {
		return fmt.Errorf("team %s already exists", teamID)
	}
	m.teams[teamID] = make(map[string]bool)
	return nil
}

// DeleteTeam implements runtime.Orchestrator; members are detached first.
func (m *Manager) DeleteTeam(teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, exists := m.teams[teamID]
	if !exists {
		return fmt.Errorf("no team %s", teamID)
	}
	for id := range members {
		if a, ok := m.agents[id]; ok {
			a.SetTeamID("")
		}
	}
	delete(m.teams, teamID)
	return nil
}

// AddAgentToTeam implements runtime.Orchestrator, keeping the agent's
// team pointer and the team roster consistent.
func (m *Manager) AddAgentToTeam(agentID, teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return fmt.Errorf("no agent %s", agentID)
	}
	members, ok := m.teams[teamID]
	if !ok {
		return fmt.Errorf("no team %s", teamID)
	}
	if prev := agent.TeamID(); prev != "" && prev != teamID {
		delete(m.teams[prev], agentID)
	}
	members[agentID] = true
	agent.SetTeamID(teamID)
	return nil
}

// RemoveAgentFromTeam implements runtime.Orchestrator.
func (m *Manager) RemoveAgentFromTeam(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return fmt.Errorf("no agent %s", agentID)
	}
	if teamID := agent.TeamID(); teamID != "" {
		delete(m.teams[teamID], agentID)
	}
	agent.SetTeamID("")
	return nil
}

// TeamMembers implements runtime.Orchestrator.
func (m *Manager) TeamMembers(teamID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id := range m.teams[teamID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TeamIDs implements runtime.Orchestrator.
func (m *Manager) TeamIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.teams))
	for id := range m.teams {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EnsureSession creates (or adopts) the active project and session rows.
func (m *Manager) EnsureSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionID != "" {
		return nil
	}
	projectID := uuid.NewString()
	sessionID := uuid.NewString()
	if m.opts.Store != nil {
		if _, err := m.opts.Store.CreateProject(ctx, projectID, m.opts.ProjectName); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		if _, err := m.opts.Store.CreateSession(ctx, sessionID, projectID, m.opts.SessionName); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}
	m.projectID = projectID
	m.sessionID = sessionID
	return nil
}

// Shutdown stops timers, waits for in-flight cycles, and saves state.
func (m *Manager) Shutdown(ctx context.Context) {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timed out waiting for cycles")
	}

	if err := m.SaveSnapshot(); err != nil {
		m.logger.Warn("failed to save session snapshot", zap.Error(err))
	}
	if m.opts.Tracker != nil {
		if err := m.opts.Tracker.Save(); err != nil {
			m.logger.Warn("failed to save performance metrics", zap.Error(err))
		}
	}
}
