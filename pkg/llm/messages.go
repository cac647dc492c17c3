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
package llm

import (
	"fmt"

	"github.com/teradata-labs/quorum/pkg/types"
)

// WireRole maps the runtime's extended role vocabulary onto the four roles
// chat completion APIs accept. Framework-injected roles travel as user
// messages so models that collapse repeated system messages still see
// them; tool results keep the tool role.
func WireRole(role string) string {
	switch role {
	case types.RoleSystem:
		return "system"
	case types.RoleAssistant:
		return "assistant"
	case types.RoleTool:
		return "tool"
	default:
		// user, system_intervention, agent_state_change,
		// system_framework_notification
		return "user"
	}
}

// WireContent prefixes framework-injected messages so the model can tell
// them apart from real user input after the role collapse.
func WireContent(msg types.Message) string {
	switch msg.Role {
	case types.RoleSystemIntervention,
		types.RoleAgentStateChange,
		types.RoleFrameworkNotification:
		return fmt.Sprintf("[framework:%s] %s", msg.Role, msg.Content)
	default:
		return msg.Content
	}
}
