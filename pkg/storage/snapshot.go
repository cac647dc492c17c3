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
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teradata-labs/quorum/pkg/types"
)

// DynamicAgentConfig captures enough of a dynamically created agent to
// recreate it on session restore.
type DynamicAgentConfig struct {
	ID           string          `json:"id"`
	Kind         types.AgentKind `json:"kind"`
	Persona      string          `json:"persona"`
	ProviderName string          `json:"provider_name"`
	ModelID      string          `json:"model_id"`
	Temperature  float64         `json:"temperature"`
	SandboxPath  string          `json:"sandbox_path"`
	TeamID       string          `json:"team_id,omitempty"`
	State        string          `json:"state,omitempty"`
}

// SessionSnapshot is the per (project, session) JSON snapshot of the live
// agent population.
type SessionSnapshot struct {
	Teams               map[string][]string            `json:"teams"`
	AgentToTeam         map[string]string              `json:"agent_to_team"`
	DynamicAgentsConfig []DynamicAgentConfig           `json:"dynamic_agents_config"`
	AgentHistories      map[string][]types.Message     `json:"agent_histories"`
}

// SnapshotPath returns the snapshot file path for a (project, session)
// pair under baseDir.
func SnapshotPath(baseDir, projectID, sessionID string) string {
	return filepath.Join(baseDir, projectID, fmt.Sprintf("session_%s.json", sessionID))
}

// SaveSnapshot writes the snapshot atomically (temp file then rename).
func SaveSnapshot(path string, snap *SessionSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return atomicWrite(path, data)
}

// LoadSnapshot reads a snapshot, returning (nil, nil) when the file does
// not exist.
func LoadSnapshot(path string) (*SessionSnapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// AtomicWriteJSON marshals v and writes it atomically. Shared by the key
// manager and performance tracker persistence.
func AtomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return atomicWrite(path, data)
}
