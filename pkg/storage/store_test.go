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
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/quorum/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProjectSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.CreateProject(ctx, "proj-1", "Demo Project")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", p.ID)

	_, err = s.CreateSession(ctx, "sess-1", "proj-1", "default")
	require.NoError(t, err)

	loaded, err := s.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Demo Project", loaded.Name)
}

func TestLogAndListInteractions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.LogInteraction(ctx, &Interaction{
		SessionID: "sess-1",
		AgentID:   "admin",
		Role:      "user",
		Content:   "hello",
	})
	require.NoError(t, err)
	assert.Positive(t, id1)

	_, err = s.LogInteraction(ctx, &Interaction{
		SessionID:     "sess-1",
		AgentID:       "admin",
		Role:          "assistant",
		Content:       "hi there",
		ToolCallsJSON: `[{"name":"send_message"}]`,
	})
	require.NoError(t, err)

	rows, err := s.ListInteractions(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "hello", rows[0].Content)
	assert.Equal(t, "assistant", rows[1].Role)
	assert.Contains(t, rows[1].ToolCallsJSON, "send_message")

	other, err := s.ListInteractions(ctx, "sess-other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteContaminatedInteractions_ToolRowsExempt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	contaminated := "response leak <|im_start|> more text"
	for _, in := range []*Interaction{
		{SessionID: "sess-1", AgentID: "worker-1", Role: "assistant", Content: contaminated},
		{SessionID: "sess-1", AgentID: "worker-1", Role: "tool", Content: contaminated},
		{SessionID: "sess-1", AgentID: "worker-1", Role: "assistant", Content: "clean response"},
		{SessionID: "sess-2", AgentID: "worker-2", Role: "assistant", Content: contaminated},
	} {
		_, err := s.LogInteraction(ctx, in)
		require.NoError(t, err)
	}

	n, err := s.DeleteContaminatedInteractions(ctx, "sess-1", []string{"<|im_start|>"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.ListInteractions(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// The tool row survives even though its content matches.
	assert.Equal(t, "tool", rows[0].Role)
	assert.Equal(t, "clean response", rows[1].Content)

	// Other sessions are untouched.
	rows, err = s.ListInteractions(ctx, "sess-2")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDeleteContaminatedInteractions_NoPatterns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.DeleteContaminatedInteractions(ctx, "sess-1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKnowledgeSaveAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SaveKnowledge(ctx, &KnowledgeItem{
		SessionID:  "sess-1",
		Keywords:   "deploy, kubernetes, rollout",
		Summary:    "Rollouts need a readiness gate before traffic shift.",
		Importance: 0.8,
	})
	require.NoError(t, err)
	_, err = s.SaveKnowledge(ctx, &KnowledgeItem{
		Keywords:   "deploy, ftp",
		Summary:    "Low-value note.",
		Importance: 0.2,
	})
	require.NoError(t, err)

	hits, err := s.SearchKnowledge(ctx, "deploy", 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Summary, "readiness gate")

	// Threshold 0 returns both, most important first.
	hits, err = s.SearchKnowledge(ctx, "deploy", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Greater(t, hits[0].Importance, hits[1].Importance)
	assert.False(t, hits[0].LastAccessed.IsZero() && hits[1].LastAccessed.IsZero())
}

func TestSnapshotRoundTrip(t *testing.T) {
	base := t.TempDir()
	path := SnapshotPath(base, "proj-1", "sess-1")

	snap := &SessionSnapshot{
		Teams:       map[string][]string{"team-1": {"worker-1"}},
		AgentToTeam: map[string]string{"worker-1": "team-1"},
		DynamicAgentsConfig: []DynamicAgentConfig{{
			ID:      "worker-1",
			Kind:    types.KindWorker,
			Persona: "Coder",
			State:   "wait",
		}},
		AgentHistories: map[string][]types.Message{
			"worker-1": {{Role: types.RoleUser, Content: "[From @admin (Admin)]: start"}},
		},
	}
	require.NoError(t, SaveSnapshot(path, snap))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Teams, loaded.Teams)
	assert.Equal(t, "Coder", loaded.DynamicAgentsConfig[0].Persona)
	require.Len(t, loaded.AgentHistories["worker-1"], 1)
	assert.Equal(t, types.RoleUser, loaded.AgentHistories["worker-1"][0].Role)
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, snap)
}
