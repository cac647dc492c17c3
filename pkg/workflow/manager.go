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
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/prompts"
	"github.com/teradata-labs/quorum/pkg/types"
)

// GovernancePrinciple is one governance rule appended to the standard
// framework instructions of the agents it applies to.
type GovernancePrinciple struct {
	ID        string   `json:"id" mapstructure:"id"`
	Name      string   `json:"name" mapstructure:"name"`
	Text      string   `json:"text" mapstructure:"text"`
	AppliesTo []string `json:"applies_to" mapstructure:"applies_to"`
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
}

// AppliesToKind reports whether the principle binds the given kind.
// An empty applies_to list binds everyone.
func (p *GovernancePrinciple) AppliesToKind(kind types.AgentKind) bool {
	if len(p.AppliesTo) == 0 {
		return true
	}
	for _, k := range p.AppliesTo {
		if strings.EqualFold(k, string(kind)) || strings.EqualFold(k, "all") {
			return true
		}
	}
	return false
}

// Population exposes the live agent registry to the address-book builder.
// Implemented by the agent manager.
type Population interface {
	ListAgents() []*types.Agent
}

// StateChangeListener receives state-change notifications for UI fan-out.
type StateChangeListener func(agent *types.Agent, from, to string)

// PromptContext carries the session-level placeholders injected into
// every system prompt.
type PromptContext struct {
	ProjectName string
	SessionName string
}

// Manager is the per-agent-kind finite state machine plus the system
// prompt assembler.
type Manager struct {
	registry   prompts.Registry
	principles []GovernancePrinciple
	onChange   StateChangeListener
	now        func() time.Time
	logger     *zap.Logger
}

// NewManager creates a workflow manager.
func NewManager(registry prompts.Registry, principles []GovernancePrinciple, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry:   registry,
		principles: principles,
		now:        time.Now,
		logger:     logger,
	}
}

// SetStateChangeListener registers the UI notification hook.
func (m *Manager) SetStateChangeListener(fn StateChangeListener) {
	m.onChange = fn
}

// Principles returns the enabled principles binding the given kind.
func (m *Manager) Principles(kind types.AgentKind) []GovernancePrinciple {
	var out []GovernancePrinciple
	for _, p := range m.principles {
		if p.Enabled && p.AppliesToKind(kind) {
			out = append(out, p)
		}
	}
	return out
}

// ChangeState validates and applies a state transition. The requested
// state may carry the kind prefix agents use in request_state directives.
// A transition to the current state is a no-op apart from the documented
// PM manage flag.
func (m *Manager) ChangeState(agent *types.Agent, requested string) error {
	state := NormalizeState(agent.Kind, requested)
	if !IsLegalState(agent.Kind, state) {
		return fmt.Errorf("state %q is not legal for agent kind %s (legal: %s)",
			requested, agent.Kind, strings.Join(LegalStates(agent.Kind), ", "))
	}

	from := agent.State()
	changed := from != state
	agent.SetState(state)

	// PM entering manage must refresh its task view first.
	if agent.Kind == types.KindPM && state == StatePMManage {
		agent.NeedsInitialListTools = true
	}

	if changed {
		m.logger.Info("agent state changed",
			zap.String("agent_id", agent.ID),
			zap.String("from", from),
			zap.String("to", state))
		if m.onChange != nil {
			m.onChange(agent, from, state)
		}
	}
	return nil
}

// SystemPrompt combines the kind's standard framework instructions with
// the state-specific template, injecting the context placeholders and the
// address book synthesized from the live population.
func (m *Manager) SystemPrompt(ctx context.Context, agent *types.Agent, pop Population, pctx PromptContext) (string, error) {
	state := agent.State()
	if state == "" {
		state = StateDefault
	}

	standard, err := m.registry.Get(ctx, prompts.StandardKey(string(agent.Kind)), map[string]any{
		"agent_id":              agent.ID,
		"persona":               agent.Persona,
		"personality":           agent.ConfigSystemPrompt,
		"project_name":          pctx.ProjectName,
		"session_name":          pctx.SessionName,
		"team_id":               agent.TeamID(),
		"current_time_utc":      m.now().UTC().Format(time.RFC3339),
		"address_book":          m.AddressBook(agent, pop),
		"governance_principles": m.renderPrinciples(agent.Kind),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render standard instructions: %w", err)
	}

	key := prompts.StateKey(string(agent.Kind), state)
	full, err := m.registry.Get(ctx, key, map[string]any{"standard_instructions": standard})
	if err != nil {
		// Unknown state template falls back to the kind's default.
		full, err = m.registry.Get(ctx, prompts.StateKey(string(agent.Kind), StateDefault),
			map[string]any{"standard_instructions": standard})
		if err != nil {
			return "", fmt.Errorf("failed to render state template %s: %w", key, err)
		}
	}
	return strings.TrimSpace(full), nil
}

// AddressBook renders the peers this agent may contact:
//   - admin sees all PMs;
//   - a PM sees the admin, its workers (same team), and peer PMs;
//   - a worker sees the admin, its PM, and its team members;
//   - the guardian sees nobody.
func (m *Manager) AddressBook(agent *types.Agent, pop Population) string {
	if pop == nil {
		return "(no peers)"
	}

	var entries []string
	add := func(peer *types.Agent, role string) {
		entries = append(entries, fmt.Sprintf("- %s (%s): %s", peer.ID, peer.Persona, role))
	}

	agents := pop.ListAgents()
	switch agent.Kind {
	case types.KindAdmin:
		for _, peer := range agents {
			if peer.Kind == types.KindPM {
				add(peer, "project manager")
			}
		}
	case types.KindPM:
		for _, peer := range agents {
			switch {
			case peer.Kind == types.KindAdmin:
				add(peer, "admin")
			case peer.Kind == types.KindWorker && peer.TeamID() != "" && peer.TeamID() == agent.TeamID():
				add(peer, "your worker")
			case peer.Kind == types.KindPM && peer.ID != agent.ID:
				add(peer, "peer project manager")
			}
		}
	case types.KindWorker:
		for _, peer := range agents {
			switch {
			case peer.Kind == types.KindAdmin:
				add(peer, "admin")
			case peer.Kind == types.KindPM && peer.TeamID() != "" && peer.TeamID() == agent.TeamID():
				add(peer, "your project manager")
			case peer.Kind == types.KindWorker && peer.ID != agent.ID && peer.TeamID() != "" && peer.TeamID() == agent.TeamID():
				add(peer, "team member")
			}
		}
	}

	if len(entries) == 0 {
		return "(no peers)"
	}
	sort.Strings(entries)
	return strings.Join(entries, "\n")
}

func (m *Manager) renderPrinciples(kind types.AgentKind) string {
	applicable := m.Principles(kind)
	if len(applicable) == 0 {
		return "(none)"
	}
	var lines []string
	for _, p := range applicable {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", p.ID, p.Name, p.Text))
	}
	return strings.Join(lines, "\n")
}
