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
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/storage"
	"github.com/teradata-labs/quorum/pkg/types"
)

// CleanupInterval is how often the contamination sweep runs.
const CleanupInterval = 5 * time.Minute

// DefaultContaminationPatterns are substrings that mark a message as
// chat-template leakage from a misbehaving model. Tool result messages
// are exempt: they legitimately quote raw model output.
var DefaultContaminationPatterns = []string{
	"<|im_start|>",
	"<|im_end|>",
	"<|endoftext|>",
	"<|assistant|>",
	"[INST]",
	"[/INST]",
	"<<SYS>>",
}

// Cleaner removes contaminated messages from live agent histories and
// from the persisted interaction log.
type Cleaner struct {
	patterns []string
	store    *storage.Store
	logger   *zap.Logger
}

// NewCleaner creates a contamination cleaner. store may be nil when
// persistence is disabled.
func NewCleaner(patterns []string, store *storage.Store, logger *zap.Logger) *Cleaner {
	if len(patterns) == 0 {
		patterns = DefaultContaminationPatterns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{patterns: patterns, store: store, logger: logger}
}

// IsContaminated reports whether a message should be scrubbed. role=tool
// messages never count.
func (c *Cleaner) IsContaminated(msg types.Message) bool {
	if msg.Role == types.RoleTool {
		return false
	}
	for _, p := range c.patterns {
		if strings.Contains(msg.Content, p) {
			return true
		}
	}
	return false
}

// CleanAgent scrubs an agent's in-memory history, returning the number of
// removed messages.
func (c *Cleaner) CleanAgent(agent *types.Agent) int {
	contaminated := make(map[int]bool)
	for i, msg := range agent.History() {
		if c.IsContaminated(msg) {
			contaminated[i] = true
		}
	}
	if len(contaminated) == 0 {
		return 0
	}
	removed := agent.RemoveHistoryAt(contaminated)
	if removed > 0 {
		c.logger.Info("removed contaminated messages",
			zap.String("agent_id", agent.ID),
			zap.Int("removed", removed))
	}
	return removed
}

// CleanSession scrubs the persisted interaction log for a session,
// returning the number of deleted rows.
func (c *Cleaner) CleanSession(ctx context.Context, sessionID string) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.DeleteContaminatedInteractions(ctx, sessionID, c.patterns)
}
