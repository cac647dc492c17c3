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
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/health"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/ui"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

// snapshotInterval is how often the session snapshot autosaves.
const snapshotInterval = time.Minute

// StartTimers launches the periodic jobs: the PM manage check, the
// contamination sweep, and the snapshot autosave. Returns the cron
// handle so callers can stop it.
func (m *Manager) StartTimers() (*cron.Cron, error) {
	c := cron.New()

	interval := m.opts.PMManageCheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), m.pmManageCheck); err != nil {
		return nil, fmt.Errorf("failed to register manage check: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", health.CleanupInterval), m.contaminationSweep); err != nil {
		return nil, fmt.Errorf("failed to register contamination sweep: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", snapshotInterval), func() {
		if err := m.SaveSnapshot(); err != nil {
			m.logger.Warn("snapshot autosave failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to register snapshot autosave: %w", err)
	}

	c.Start()
	m.logger.Info("periodic timers started",
		zap.Duration("pm_manage_check_interval", interval))
	return c, nil
}

// pmManageCheck nudges resting PMs into their manage duties: every idle,
// approved PM that is between flows (standby or default) moves to manage
// and gets a cycle.
func (m *Manager) pmManageCheck() {
	for _, agent := range m.ListAgents() {
		if agent.Kind != types.KindPM || agent.AwaitingApproval {
			continue
		}
		if agent.Status() != types.StatusIdle {
			continue
		}
		state := agent.State()
		if state != workflow.StatePMStandby && state != workflow.StateDefault {
			continue
		}
		if err := m.opts.Workflow.ChangeState(agent, workflow.StatePMManage); err != nil {
			m.logger.Warn("manage check transition failed",
				zap.String("agent_id", agent.ID), zap.Error(err))
			continue
		}
		m.ScheduleCycle(agent.ID, 0)
	}
}

// contaminationSweep scrubs live histories and the persisted log.
func (m *Manager) contaminationSweep() {
	if m.opts.Cleaner == nil {
		return
	}
	removed := 0
	for _, agent := range m.ListAgents() {
		removed += m.opts.Cleaner.CleanAgent(agent)
	}
	deleted, err := m.opts.Cleaner.CleanSession(m.baseCtx, m.SessionID())
	if err != nil {
		m.logger.Warn("persisted contamination cleanup failed", zap.Error(err))
	}
	if removed+deleted > 0 {
		m.events.Broadcast(ui.Event{
			Type: ui.EventContaminatedCleanup,
			Payload: map[string]any{
				"messages_removed": removed,
				"rows_deleted":     deleted,
			},
		})
		m.logger.Info("contaminated history cleaned",
			zap.Int("messages_removed", removed),
			zap.Int("rows_deleted", deleted))
	}
}
