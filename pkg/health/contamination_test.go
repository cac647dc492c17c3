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
package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/quorum/pkg/types"
)

func TestNewCleaner_DefaultPatterns(t *testing.T) {
	c := NewCleaner(nil, nil, nil)
	assert.True(t, c.IsContaminated(types.Message{
		Role:    types.RoleAssistant,
		Content: "done <|im_end|>",
	}))
}

func TestIsContaminated(t *testing.T) {
	c := NewCleaner([]string{"<|im_start|>", "[INST]"}, nil, nil)

	assert.True(t, c.IsContaminated(types.Message{
		Role:    types.RoleAssistant,
		Content: "<|im_start|>system leak",
	}))
	assert.False(t, c.IsContaminated(types.Message{
		Role:    types.RoleAssistant,
		Content: "a perfectly normal response",
	}))

	// Tool results legitimately quote raw output and are never scrubbed.
	assert.False(t, c.IsContaminated(types.Message{
		Role:    types.RoleTool,
		Content: "file contents: <|im_start|> ...",
	}))
}

func TestCleanAgent(t *testing.T) {
	c := NewCleaner(nil, nil, nil)

	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.AppendMessage(types.Message{Role: types.RoleUser, Content: "[From @pm-1 (PM Alpha)]: build the parser"})
	w.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "on it <|endoftext|>"})
	w.AppendMessage(types.Message{Role: types.RoleTool, Content: "tool output <|endoftext|>"})
	w.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "parser module finished"})

	removed := c.CleanAgent(w)
	assert.Equal(t, 1, removed)

	h := w.History()
	require.Len(t, h, 3)
	assert.Equal(t, types.RoleTool, h[1].Role)
	assert.Equal(t, "parser module finished", h[2].Content)
}

func TestCleanAgent_NothingToRemove(t *testing.T) {
	c := NewCleaner(nil, nil, nil)
	w := types.NewAgent("worker-1", types.KindWorker, "Coder")
	w.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "clean"})

	assert.Zero(t, c.CleanAgent(w))
	assert.Len(t, w.History(), 1)
}

func TestCleanSession_NilStore(t *testing.T) {
	c := NewCleaner(nil, nil, nil)
	n, err := c.CleanSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
