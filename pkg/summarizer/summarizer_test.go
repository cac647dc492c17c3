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
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/quorum/pkg/health"
	"github.com/teradata-labs/quorum/pkg/prompts"
	"github.com/teradata-labs/quorum/pkg/types"
)

// fixedProvider returns the same final response for every request, or an
// error stream when err is set.
type fixedProvider struct {
	text string
	err  error
}

func (p *fixedProvider) Name() string { return "fixed" }

func (p *fixedProvider) StreamCompletion(ctx context.Context, req types.ChatRequest) (<-chan types.StreamEvent, error) {
	ch := make(chan types.StreamEvent, 1)
	if p.err != nil {
		ch <- types.StreamEvent{Type: types.EventError, Err: p.err}
	} else {
		ch <- types.StreamEvent{Type: types.EventFinalResponse, Content: p.text}
	}
	close(ch)
	return ch, nil
}

func newTestGuardian(t *testing.T, p *fixedProvider) *health.Guardian {
	t.Helper()
	return health.NewGuardian(p, "summary-model", prompts.NewMapRegistry(nil), nil)
}

func longHistory(n int) []types.Message {
	msgs := []types.Message{{Role: types.RoleSystem, Content: "You are Coder, a worker agent."}}
	for i := 0; i < n; i++ {
		msgs = append(msgs, types.Message{
			Role: types.RoleAssistant,
			Content: fmt.Sprintf("turn %d: %s", i,
				strings.Repeat("analyzed the module and reported findings. ", 5)),
		})
	}
	return msgs
}

func TestNeedsSummarization_Threshold(t *testing.T) {
	s := New(newTestGuardian(t, &fixedProvider{text: "ok"}), 0, nil)
	history := longHistory(20)

	tokens := s.EstimateTokens(history)
	require.Positive(t, tokens)

	// Window large enough that the history sits below 80%.
	below := New(nil, tokens*2, nil)
	assert.False(t, below.NeedsSummarization(history))

	// Window small enough that the history crosses 80%.
	above := New(nil, tokens, nil)
	assert.True(t, above.NeedsSummarization(history))
}

func TestEstimateTokens_GrowsWithContent(t *testing.T) {
	s := New(nil, 0, nil)

	short := []types.Message{{Role: types.RoleUser, Content: "hi"}}
	long := []types.Message{{Role: types.RoleUser, Content: strings.Repeat("word ", 200)}}
	assert.Greater(t, s.EstimateTokens(long), s.EstimateTokens(short))
	assert.Zero(t, s.EstimateTokens(nil))
}

func TestSummarize_CondensesHistory(t *testing.T) {
	s := New(newTestGuardian(t, &fixedProvider{text: "the team built and tested the parser"}), 8192, nil)
	history := longHistory(30)

	condensed, applied := s.Summarize(context.Background(), history)
	require.True(t, applied)
	assert.Less(t, len(condensed), len(history))
	assert.Less(t, s.EstimateTokens(condensed), s.EstimateTokens(history))

	// System prompt survives in front, followed by the two summaries.
	assert.Equal(t, history[0], condensed[0])
	require.GreaterOrEqual(t, len(condensed), 3)
	assert.Equal(t, types.RoleSystem, condensed[1].Role)
	assert.True(t, strings.HasPrefix(condensed[1].Content, SummaryPrefix1))
	assert.Equal(t, types.RoleSystem, condensed[2].Role)
	assert.True(t, strings.HasPrefix(condensed[2].Content, SummaryPrefix2))
	assert.True(t, strings.HasSuffix(condensed[1].Content, "]"))

	// The last messages are carried over verbatim.
	assert.Equal(t, history[len(history)-1], condensed[len(condensed)-1])
}

func TestSummarize_DedupesRecentMessages(t *testing.T) {
	s := New(newTestGuardian(t, &fixedProvider{text: "summary"}), 8192, nil)

	history := longHistory(25)
	dup := types.Message{Role: types.RoleAssistant, Content: "I acknowledge the instruction."}
	history = append(history, dup, dup, dup)

	condensed, applied := s.Summarize(context.Background(), history)
	require.True(t, applied)

	count := 0
	for _, m := range condensed {
		if m.Content == dup.Content {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSummarize_ShortHistoryUntouched(t *testing.T) {
	s := New(newTestGuardian(t, &fixedProvider{text: "summary"}), 8192, nil)
	history := longHistory(5)

	out, applied := s.Summarize(context.Background(), history)
	assert.False(t, applied)
	assert.Equal(t, history, out)
}

func TestSummarize_GuardianErrorKeepsOriginal(t *testing.T) {
	s := New(newTestGuardian(t, &fixedProvider{err: errors.New("model offline")}), 8192, nil)
	history := longHistory(30)

	out, applied := s.Summarize(context.Background(), history)
	assert.False(t, applied)
	assert.Equal(t, history, out)
}

func TestSummarize_RefusesMessageCountGrowth(t *testing.T) {
	// With one message beyond the retained tail, two summary messages
	// would REPLACE it and the history would grow from 12 to 13 messages
	// even though the token count shrinks.
	s := New(newTestGuardian(t, &fixedProvider{text: "brief"}), 8192, nil)

	history := []types.Message{{Role: types.RoleSystem, Content: "You are Coder, a worker agent."}}
	history = append(history, types.Message{
		Role:    types.RoleAssistant,
		Content: strings.Repeat("surveyed the repository layout and catalogued every package. ", 40),
	})
	for i := 0; i < 10; i++ {
		history = append(history, types.Message{
			Role:    types.RoleAssistant,
			Content: fmt.Sprintf("recent turn %d", i),
		})
	}
	require.Len(t, history, 12)

	out, applied := s.Summarize(context.Background(), history)
	assert.False(t, applied)
	assert.Equal(t, history, out)
}

func TestSummarize_RefusesGrowth(t *testing.T) {
	// A "summary" longer than the text it replaces must be rejected.
	s := New(newTestGuardian(t, &fixedProvider{
		text: strings.Repeat("a very verbose and unhelpful summary. ", 200),
	}), 8192, nil)
	history := longHistory(15)

	out, applied := s.Summarize(context.Background(), history)
	assert.False(t, applied)
	assert.Equal(t, history, out)
}
