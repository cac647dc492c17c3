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

// Package models discovers and ranks the models reachable from this
// process: local inference endpoints (Ollama and OpenAI-style) plus remote
// providers, filtered by the configured tier.
package models

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/types"
)

// Scorer supplies performance scores during ranking. Implemented by
// perf.Tracker.
type Scorer interface {
	Score(provider, model string) float64
}

// Registry holds the discovered model set. Mutated only during discovery;
// readers see an immutable snapshot between discoveries.
type Registry struct {
	mu     sync.RWMutex
	models []types.ModelInfo

	discoverer *Discoverer
	logger     *zap.Logger
}

// NewRegistry creates an empty registry backed by the given discoverer.
func NewRegistry(discoverer *Discoverer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{discoverer: discoverer, logger: logger}
}

// Refresh runs discovery and replaces the snapshot. Partial discovery
// failures are logged, not fatal: whatever was found becomes the snapshot.
func (r *Registry) Refresh(ctx context.Context, tier types.ModelTier) error {
	found, err := r.discoverer.Discover(ctx, tier)
	if err != nil {
		r.logger.Warn("model discovery incomplete", zap.Error(err))
	}

	r.mu.Lock()
	r.models = found
	r.mu.Unlock()

	r.logger.Info("model registry refreshed",
		zap.String("tier", string(tier)),
		zap.Int("models", len(found)))
	return nil
}

// SetModels replaces the snapshot directly. Used by tests and by restore.
func (r *Registry) SetModels(models []types.ModelInfo) {
	r.mu.Lock()
	r.models = append([]types.ModelInfo(nil), models...)
	r.mu.Unlock()
}

// Models returns a copy of the current snapshot.
func (r *Registry) Models() []types.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ModelInfo, len(r.models))
	copy(out, r.models)
	return out
}

// FilterByTier applies the tier policy:
//   - LOCAL: only local providers;
//   - FREE: all local providers + remote models whose id contains ":free";
//   - ALL: everything.
func FilterByTier(models []types.ModelInfo, tier types.ModelTier) []types.ModelInfo {
	var out []types.ModelInfo
	for _, m := range models {
		switch tier {
		case types.TierLocal:
			if m.Local {
				out = append(out, m)
			}
		case types.TierFree:
			if m.Local || strings.Contains(m.ID, ":free") {
				out = append(out, m)
			}
		default:
			out = append(out, m)
		}
	}
	return out
}

// EligibleModels returns the tier-filtered snapshot.
func (r *Registry) EligibleModels(tier types.ModelTier) []types.ModelInfo {
	return FilterByTier(r.Models(), tier)
}

// Rank orders candidates by the comprehensive order: parameter count
// descending (missing treated as smallest), performance score descending
// (missing treated as 0.0), id ascending. When preferLocal is set, local
// providers sort before remote ones. The order is total and transitive.
func Rank(candidates []types.ModelInfo, scorer Scorer, preferLocal bool) []types.ModelInfo {
	out := make([]types.ModelInfo, len(candidates))
	copy(out, candidates)

	score := func(m types.ModelInfo) float64 {
		if scorer == nil {
			return m.Score
		}
		if s := scorer.Score(m.Provider, m.ID); s > 0 {
			return s
		}
		return m.Score
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if preferLocal && a.Local != b.Local {
			return a.Local
		}
		if a.NumParameters != b.NumParameters {
			return a.NumParameters > b.NumParameters
		}
		sa, sb := score(a), score(b)
		if sa != sb {
			return sa > sb
		}
		return a.ID < b.ID
	})
	return out
}
