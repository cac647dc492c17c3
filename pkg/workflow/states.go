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

// Package workflow implements the per-agent-kind state machine and builds
// the system prompt that drives each cycle, including the address book
// derived from the live agent population.
package workflow

import (
	"strings"

	"github.com/teradata-labs/quorum/pkg/types"
)

// Workflow states per agent kind.
const (
	StateStartup = "startup"
	StateDefault = "default"

	StateAdminConversation  = "conversation"
	StateAdminPlanning      = "planning"
	StateAdminWorkDelegated = "work_delegated"
	StateAdminWork          = "work"

	StatePMWork            = "work"
	StatePMManage          = "manage"
	StatePMBuildTeamTasks  = "build_team_tasks"
	StatePMActivateWorkers = "activate_workers"
	StatePMStandby         = "standby"

	StateWorkerWork = "work"
	StateWorkerWait = "wait"
)

// legalStates is the closed state set per kind.
var legalStates = map[types.AgentKind][]string{
	types.KindAdmin: {
		StateStartup, StateAdminConversation, StateAdminPlanning,
		StateAdminWorkDelegated, StateAdminWork, StateDefault,
	},
	types.KindPM: {
		StateStartup, StatePMWork, StatePMManage, StatePMBuildTeamTasks,
		StatePMActivateWorkers, StatePMStandby, StateDefault,
	},
	types.KindWorker: {
		StateStartup, StateWorkerWork, StateWorkerWait, StateDefault,
	},
	types.KindGuardian: {StateDefault},
}

// LegalStates returns the legal state list for a kind.
func LegalStates(kind types.AgentKind) []string {
	return append([]string(nil), legalStates[kind]...)
}

// IsLegalState reports whether state is legal for the kind.
func IsLegalState(kind types.AgentKind, state string) bool {
	for _, s := range legalStates[kind] {
		if s == state {
			return true
		}
	}
	return false
}

// NormalizeState strips the kind prefix agents use in request_state
// directives ("pm_activate_workers" → "activate_workers") and lowercases
// the result.
func NormalizeState(kind types.AgentKind, requested string) string {
	s := strings.ToLower(strings.TrimSpace(requested))
	prefix := string(kind) + "_"
	s = strings.TrimPrefix(s, prefix)
	return s
}
