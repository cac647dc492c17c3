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

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/storage"
	"github.com/teradata-labs/quorum/pkg/types"
)

// SaveSnapshot writes the live population (teams, dynamic agents,
// histories) to the per-session snapshot file.
func (m *Manager) SaveSnapshot() error {
	if m.opts.SnapshotBaseDir == "" {
		return nil
	}

	snap := &storage.SessionSnapshot{
		Teams:          make(map[string][]string),
		AgentToTeam:    make(map[string]string),
		AgentHistories: make(map[string][]types.Message),
	}

	m.mu.RLock()
	for teamID, members := range m.teams {
		for id := range members {
			snap.Teams[teamID] = append(snap.Teams[teamID], id)
		}
	}
	agents := make([]*types.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	projectID, sessionID := m.projectID, m.sessionID
	m.mu.RUnlock()

	for _, a := range agents {
		if teamID := a.TeamID(); teamID != "" {
			snap.AgentToTeam[a.ID] = teamID
		}
		snap.AgentHistories[a.ID] = a.History()
		if !a.Bootstrap {
			snap.DynamicAgentsConfig = append(snap.DynamicAgentsConfig, storage.DynamicAgentConfig{
				ID:           a.ID,
				Kind:         a.Kind,
				Persona:      a.Persona,
				ProviderName: a.ProviderName,
				ModelID:      a.ModelID,
				Temperature:  a.Temperature,
				SandboxPath:  a.SandboxPath,
				TeamID:       a.TeamID(),
				State:        a.State(),
			})
		}
	}

	path := storage.SnapshotPath(m.opts.SnapshotBaseDir, projectID, sessionID)
	return storage.SaveSnapshot(path, snap)
}

// RestoreSnapshot rebuilds dynamic agents, team state, and histories from
// the session snapshot, if one exists.
func (m *Manager) RestoreSnapshot(ctx context.Context) error {
	if m.opts.SnapshotBaseDir == "" {
		return nil
	}
	path := storage.SnapshotPath(m.opts.SnapshotBaseDir, m.ProjectID(), m.SessionID())
	snap, err := storage.LoadSnapshot(path)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	for _, cfg := range snap.DynamicAgentsConfig {
		agent := types.NewAgent(cfg.ID, cfg.Kind, cfg.Persona)
		agent.ProviderName = cfg.ProviderName
		agent.ModelID = cfg.ModelID
		agent.Temperature = cfg.Temperature
		agent.SandboxPath = cfg.SandboxPath
		if cfg.State != "" {
			agent.SetState(cfg.State)
		}
		m.mu.Lock()
		m.agents[cfg.ID] = agent
		m.mu.Unlock()
	}

	m.mu.Lock()
	for teamID, members := range snap.Teams {
		set := make(map[string]bool, len(members))
		for _, id := range members {
			if _, ok := m.agents[id]; ok {
				set[id] = true
			}
		}
		m.teams[teamID] = set
	}
	m.mu.Unlock()

	for agentID, teamID := range snap.AgentToTeam {
		if agent, ok := m.GetAgent(agentID); ok {
			agent.SetTeamID(teamID)
		}
	}
	for agentID, history := range snap.AgentHistories {
		if agent, ok := m.GetAgent(agentID); ok {
			agent.ReplaceHistory(history)
		}
	}

	m.logger.Info("session snapshot restored",
		zap.Int("dynamic_agents", len(snap.DynamicAgentsConfig)),
		zap.Int("teams", len(snap.Teams)))
	return nil
}
