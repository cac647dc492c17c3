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

// Package perf tracks per (provider, model) call outcomes and latency and
// turns them into a score consulted by model selection and failover. The
// in-memory snapshot is the source of truth between persisted saves.
package perf

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/storage"
)

// DefaultMinCallsThreshold is the call count below which scores are scaled
// down proportionally (not enough evidence yet).
const DefaultMinCallsThreshold = 5

// Stats holds raw counters for one (provider, model).
type Stats struct {
	SuccessCount    int64 `json:"success_count"`
	FailureCount    int64 `json:"failure_count"`
	TotalDurationMS int64 `json:"total_duration_ms"`
	CallCount       int64 `json:"call_count"`
}

// SuccessRate returns successes / calls, 0 when no calls.
func (s *Stats) SuccessRate() float64 {
	if s.CallCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.CallCount)
}

// AvgSuccessLatencyMS returns the mean latency of successful calls.
func (s *Stats) AvgSuccessLatencyMS() float64 {
	if s.SuccessCount == 0 {
		return 0
	}
	return float64(s.TotalDurationMS) / float64(s.SuccessCount)
}

// RankedModel is one scored entry returned by GetRankedModels.
type RankedModel struct {
	Provider string
	Model    string
	Score    float64
	Stats    Stats
}

// Tracker accumulates per-model statistics. Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	// provider → model → stats
	stats map[string]map[string]*Stats

	statePath         string
	minCallsThreshold int64
	logger            *zap.Logger
}

// NewTracker creates a tracker, loading persisted state from statePath
// when it exists.
func NewTracker(statePath string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		stats:             make(map[string]map[string]*Stats),
		statePath:         statePath,
		minCallsThreshold: DefaultMinCallsThreshold,
		logger:            logger,
	}
	if statePath != "" {
		if err := t.load(); err != nil {
			logger.Warn("failed to load performance metrics, starting fresh", zap.Error(err))
		}
	}
	return t
}

// RecordSuccess records one successful call with its latency.
func (t *Tracker) RecordSuccess(provider, model string, duration time.Duration) {
	t.mu.Lock()
	s := t.statsLocked(provider, model)
	s.CallCount++
	s.SuccessCount++
	s.TotalDurationMS += duration.Milliseconds()
	t.mu.Unlock()
}

// RecordFailure records one failed call.
func (t *Tracker) RecordFailure(provider, model string) {
	t.mu.Lock()
	s := t.statsLocked(provider, model)
	s.CallCount++
	s.FailureCount++
	t.mu.Unlock()
}

// Score computes the comprehensive score for one (provider, model):
//
//	score = success_rate*0.8 + (1-latency_penalty)*0.2
//
// where latency_penalty maps average success latency onto [0, 0.3], and
// models with fewer than minCallsThreshold calls are scaled down by
// call_count/threshold. Unknown models score 0.
func (t *Tracker) Score(provider, model string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	models, ok := t.stats[provider]
	if !ok {
		return 0
	}
	s, ok := models[model]
	if !ok {
		return 0
	}
	return t.scoreLocked(s)
}

func (t *Tracker) scoreLocked(s *Stats) float64 {
	if s.CallCount == 0 {
		return 0
	}

	// Latency penalty: 0 at <=1s average, scaling linearly to the 0.3 cap
	// at >=30s average.
	penalty := (s.AvgSuccessLatencyMS() - 1000) / (29000 / 0.3)
	if penalty < 0 {
		penalty = 0
	}
	if penalty > 0.3 {
		penalty = 0.3
	}

	score := s.SuccessRate()*0.8 + (1-penalty)*0.2
	if s.CallCount < t.minCallsThreshold {
		score *= float64(s.CallCount) / float64(t.minCallsThreshold)
	}
	return score
}

// GetStats returns a copy of the stats for one (provider, model), or nil.
func (t *Tracker) GetStats(provider, model string) *Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if models, ok := t.stats[provider]; ok {
		if s, ok := models[model]; ok {
			cp := *s
			return &cp
		}
	}
	return nil
}

// GetRankedModels returns scored models sorted by score descending. When
// provider is non-empty only that provider's models are returned. Models
// with fewer than minCalls calls are skipped.
func (t *Tracker) GetRankedModels(provider string, minCalls int64) []RankedModel {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []RankedModel
	for p, models := range t.stats {
		if provider != "" && p != provider {
			continue
		}
		for m, s := range models {
			if s.CallCount < minCalls {
				continue
			}
			out = append(out, RankedModel{Provider: p, Model: m, Score: t.scoreLocked(s), Stats: *s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Save persists the metrics atomically.
func (t *Tracker) Save() error {
	if t.statePath == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := storage.AtomicWriteJSON(t.statePath, t.stats); err != nil {
		return fmt.Errorf("failed to save performance metrics: %w", err)
	}
	return nil
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(t.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read performance metrics: %w", err)
	}
	state := make(map[string]map[string]*Stats)
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal performance metrics: %w", err)
	}
	t.mu.Lock()
	t.stats = state
	t.mu.Unlock()
	return nil
}

// statsLocked returns (creating if needed) the stats bucket. Caller holds mu.
func (t *Tracker) statsLocked(provider, model string) *Stats {
	models, ok := t.stats[provider]
	if !ok {
		models = make(map[string]*Stats)
		t.stats[provider] = models
	}
	s, ok := models[model]
	if !ok {
		s = &Stats{}
		models[model] = s
	}
	return s
}
