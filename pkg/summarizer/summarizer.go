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

// Package summarizer compresses agent histories that approach the model's
// context window, delegating the actual summarization to the guardian.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/health"
	"github.com/teradata-labs/quorum/pkg/types"
)

const (
	// DefaultContextWindow is assumed when a model's window is unknown.
	DefaultContextWindow = 8192

	// TriggerRatio is the fraction of the context window at which
	// summarization kicks in.
	TriggerRatio = 0.8

	// perMessageOverhead approximates the wire framing cost of one
	// message when estimating without a tokenizer.
	perMessageOverhead = 50

	// keepRecent is how many trailing messages survive compression
	// verbatim.
	keepRecent = 10

	// SummaryPrefix1 and SummaryPrefix2 open the two condensed-history
	// summary messages.
	SummaryPrefix1 = "[CONTEXT SUMMARY 1/2: "
	SummaryPrefix2 = "[CONTEXT SUMMARY 2/2: "
)

// Summarizer decides when a history must shrink and rebuilds it around
// two guardian-written summaries.
type Summarizer struct {
	guardian      *health.Guardian
	encoding      *tiktoken.Tiktoken
	contextWindow int
	logger        *zap.Logger
}

// New creates a summarizer. The tokenizer is optional: when the encoding
// cannot be loaded (offline runs), the character heuristic is used.
func New(guardian *health.Guardian, contextWindow int, logger *zap.Logger) *Summarizer {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		logger.Warn("tokenizer unavailable, using character heuristic", zap.Error(err))
		enc = nil
	}
	return &Summarizer{
		guardian:      guardian,
		encoding:      enc,
		contextWindow: contextWindow,
		logger:        logger,
	}
}

// EstimateTokens approximates the prompt cost of a history: tokenizer
// count when available, otherwise ceil(chars/4), plus a fixed overhead
// per message.
func (s *Summarizer) EstimateTokens(history []types.Message) int {
	total := 0
	for _, msg := range history {
		if s.encoding != nil {
			total += len(s.encoding.Encode(msg.Content, nil, nil))
		} else {
			total += (len(msg.Content) + 3) / 4
		}
		total += perMessageOverhead
	}
	return total
}

// NeedsSummarization reports whether the history crosses the trigger
// threshold.
func (s *Summarizer) NeedsSummarization(history []types.Message) bool {
	return float64(s.EstimateTokens(history)) >= TriggerRatio*float64(s.contextWindow)
}

// Summarize rebuilds the history as [system prompt, summary 1/2, summary
// 2/2, last messages]. The original history is returned unchanged (with
// applied=false) when the guardian fails or when the condensed form would
// not actually be smaller.
func (s *Summarizer) Summarize(ctx context.Context, history []types.Message) ([]types.Message, bool) {
	if len(history) <= keepRecent+1 {
		return history, false
	}

	var system *types.Message
	body := history
	if history[0].Role == types.RoleSystem {
		system = &history[0]
		body = history[1:]
	}
	if len(body) <= keepRecent {
		return history, false
	}

	recent := dedupe(body[len(body)-keepRecent:])
	toSummarize := body[:len(body)-keepRecent]
	half := len(toSummarize) / 2
	if half == 0 {
		half = 1
	}

	first, err := s.guardian.Summarize(ctx, renderConversation(toSummarize[:half]))
	if err != nil {
		s.logger.Warn("summarization failed, keeping original history", zap.Error(err))
		return history, false
	}
	second, err := s.guardian.Summarize(ctx, renderConversation(toSummarize[half:]))
	if err != nil {
		s.logger.Warn("summarization failed, keeping original history", zap.Error(err))
		return history, false
	}

	condensed := make([]types.Message, 0, len(recent)+3)
	if system != nil {
		condensed = append(condensed, *system)
	}
	condensed = append(condensed,
		types.Message{
			Role:    types.RoleSystem,
			Content: SummaryPrefix1 + strings.TrimSpace(first) + "]",
		},
		types.Message{
			Role:    types.RoleSystem,
			Content: SummaryPrefix2 + strings.TrimSpace(second) + "]",
		},
	)
	condensed = append(condensed, recent...)

	// Compression must actually shrink the prompt, in both messages and
	// tokens. Short bodies can condense into MORE messages (two summary
	// messages replacing one), which would loop on every turn.
	if len(condensed) >= len(history) || s.EstimateTokens(condensed) >= s.EstimateTokens(history) {
		s.logger.Warn("condensed history not smaller, keeping original",
			zap.Int("original_messages", len(history)),
			zap.Int("condensed_messages", len(condensed)),
			zap.Int("original_tokens", s.EstimateTokens(history)),
			zap.Int("condensed_tokens", s.EstimateTokens(condensed)))
		return history, false
	}

	s.logger.Info("history summarized",
		zap.Int("original_messages", len(history)),
		zap.Int("condensed_messages", len(condensed)))
	return condensed, true
}

// renderConversation flattens messages into the plain-text transcript the
// guardian summarizes.
func renderConversation(msgs []types.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// dedupe drops later duplicates of (role, content) pairs, preserving
// order.
func dedupe(msgs []types.Message) []types.Message {
	seen := make(map[string]bool, len(msgs))
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		key := m.Role + "\x00" + m.Content
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}
