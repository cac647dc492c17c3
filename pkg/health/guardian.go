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
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/llm"
	"github.com/teradata-labs/quorum/pkg/prompts"
	"github.com/teradata-labs/quorum/pkg/types"
)

// Verdict is the guardian's ruling on a reviewed text.
type Verdict struct {
	OK      bool
	Concern string
}

var (
	okRe      = regexp.MustCompile(`<OK\s*/?>`)
	concernRe = regexp.MustCompile(`(?s)<CONCERN>(.*?)</CONCERN>`)
)

// ParseVerdict interprets raw guardian output. The review is advisory:
// anything that is not an explicit concern reads as OK (fail-open).
func ParseVerdict(text string) Verdict {
	if m := concernRe.FindStringSubmatch(text); m != nil {
		return Verdict{OK: false, Concern: strings.TrimSpace(m[1])}
	}
	if okRe.MatchString(text) {
		return Verdict{OK: true}
	}
	return Verdict{OK: true}
}

// Guardian reviews agent outputs against the governance principles with a
// dedicated reviewer model.
type Guardian struct {
	provider llm.Provider
	model    string
	registry prompts.Registry
	logger   *zap.Logger
}

// NewGuardian creates a guardian reviewer. provider may be nil, in which
// case every review passes.
func NewGuardian(provider llm.Provider, model string, registry prompts.Registry, logger *zap.Logger) *Guardian {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guardian{provider: provider, model: model, registry: registry, logger: logger}
}

// Enabled reports whether a reviewer model is configured.
func (g *Guardian) Enabled() bool { return g != nil && g.provider != nil }

// Review submits subject text for constitutional review. Review failures
// never block the pipeline: LLM errors, empty output, and unparseable
// output all yield an OK verdict.
func (g *Guardian) Review(ctx context.Context, principlesText, subject string) Verdict {
	if !g.Enabled() {
		return Verdict{OK: true}
	}

	system, err := g.registry.Get(ctx, prompts.KeyGuardianReview, map[string]any{
		"governance_principles": principlesText,
	})
	if err != nil {
		g.logger.Warn("guardian review prompt unavailable, passing", zap.Error(err))
		return Verdict{OK: true}
	}

	text, err := g.complete(ctx, system, subject)
	if err != nil {
		g.logger.Warn("guardian review failed, passing", zap.Error(err))
		return Verdict{OK: true}
	}
	return ParseVerdict(text)
}

// Summarize compresses a rendered conversation chunk into dense prose.
// Unlike Review this propagates errors: the summarizer keeps the original
// history when compression fails.
func (g *Guardian) Summarize(ctx context.Context, conversation string) (string, error) {
	system, err := g.registry.Get(ctx, prompts.KeyGuardianSummarize, nil)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, system, conversation)
}

func (g *Guardian) complete(ctx context.Context, system, user string) (string, error) {
	events, err := g.provider.StreamCompletion(ctx, types.ChatRequest{
		Model: g.model,
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: system},
			{Role: types.RoleUser, Content: user},
		},
		AgentKind: types.KindGuardian,
	})
	if err != nil {
		return "", err
	}

	var final string
	var chunks strings.Builder
	for ev := range events {
		switch ev.Type {
		case types.EventResponseChunk:
			chunks.WriteString(ev.Content)
		case types.EventFinalResponse:
			final = ev.Content
		case types.EventError:
			return "", ev.Err
		}
	}
	if final == "" {
		final = strings.TrimSpace(chunks.String())
	}
	return final, nil
}
