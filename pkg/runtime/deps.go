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

// Package runtime drives agent cycles: the event loop over the provider
// stream, inter-agent message routing, tool execution, and the post-tool
// workflow interventions.
package runtime

import (
	"context"

	"github.com/teradata-labs/quorum/pkg/types"
)

// Orchestrator is the slice of the agent manager the runtime needs:
// registry lookups, scheduling, dynamic lifecycle, and team state. The
// manager implements it; cycles thread it as an explicit parameter
// instead of holding back-pointers on agents.
type Orchestrator interface {
	GetAgent(id string) (*types.Agent, bool)
	ListAgents() []*types.Agent

	// FindByPersona returns every live agent with the given persona
	// (case-insensitive).
	FindByPersona(persona string) []*types.Agent

	// ScheduleCycle starts a cycle for the agent if none is in flight.
	ScheduleCycle(agentID string, retryCount int)

	// CreateWorkerAgent spawns a dynamic worker for the creating PM.
	CreateWorkerAgent(ctx context.Context, persona, systemPrompt, creatorID string) (*types.Agent, error)

	// DeleteAgent removes a non-bootstrap agent.
	DeleteAgent(ctx context.Context, agentID string) error

	// Team state, kept bidirectionally consistent by the manager.
	CreateTeam(teamID string) error
	DeleteTeam(teamID string) error
	AddAgentToTeam(agentID, teamID string) error
	RemoveAgentFromTeam(agentID string) error
	TeamMembers(teamID string) []string
	TeamIDs() []string

	// Session context for tool invocations and persistence.
	ProjectID() string
	SessionID() string

	// PersistMessage appends one message to the interaction log.
	PersistMessage(ctx context.Context, agentID string, msg types.Message)
}

// Config carries the runtime knobs read from configuration.
type Config struct {
	MaxCycleTurns int

	// MaxReactivationRetries bounds consecutive unproductive
	// reactivations before the agent parks in error.
	MaxReactivationRetries int

	// MaxWorkersPerPM is the build-team fallback target.
	MaxWorkersPerPM int

	// PMManageUnproductiveLimit is how many thinking-only manage cycles
	// a PM gets before being forced to standby.
	PMManageUnproductiveLimit int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxCycleTurns:             5,
		MaxReactivationRetries:    3,
		MaxWorkersPerPM:           4,
		PMManageUnproductiveLimit: 3,
	}
}
