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
package perf

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_UnknownModelIsZero(t *testing.T) {
	tr := NewTracker("", nil)
	assert.Zero(t, tr.Score("openrouter", "never-called"))
}

func TestScore_PerfectFastModel(t *testing.T) {
	tr := NewTracker("", nil)
	for i := 0; i < 10; i++ {
		tr.RecordSuccess("openrouter", "model-a", 500*time.Millisecond)
	}

	// 100% success at sub-second latency: 1.0*0.8 + 1.0*0.2 = 1.0.
	assert.InDelta(t, 1.0, tr.Score("openrouter", "model-a"), 1e-9)
}

func TestScore_LatencyPenaltyCapped(t *testing.T) {
	tr := NewTracker("", nil)
	for i := 0; i < 10; i++ {
		tr.RecordSuccess("openrouter", "model-slow", 60*time.Second)
	}

	// Penalty caps at 0.3 no matter how slow: 0.8 + 0.7*0.2 = 0.94.
	assert.InDelta(t, 0.94, tr.Score("openrouter", "model-slow"), 1e-9)
}

func TestScore_FailuresLowerSuccessRate(t *testing.T) {
	tr := NewTracker("", nil)
	for i := 0; i < 5; i++ {
		tr.RecordSuccess("openrouter", "model-a", 500*time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		tr.RecordFailure("openrouter", "model-a")
	}

	// 50% success, no latency penalty: 0.5*0.8 + 0.2 = 0.6.
	assert.InDelta(t, 0.6, tr.Score("openrouter", "model-a"), 1e-9)
}

func TestScore_LowEvidenceScaledDown(t *testing.T) {
	tr := NewTracker("", nil)
	tr.RecordSuccess("openrouter", "model-new", 500*time.Millisecond)

	// One call out of the five-call threshold scales a perfect score to 0.2.
	assert.InDelta(t, 0.2, tr.Score("openrouter", "model-new"), 1e-9)
}

func TestGetRankedModels_OrderAndMinCalls(t *testing.T) {
	tr := NewTracker("", nil)
	for i := 0; i < 10; i++ {
		tr.RecordSuccess("openrouter", "good", 500*time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		tr.RecordFailure("openrouter", "bad")
	}
	tr.RecordSuccess("openrouter", "sparse", 500*time.Millisecond)

	ranked := tr.GetRankedModels("openrouter", 5)
	require.Len(t, ranked, 2)
	assert.Equal(t, "good", ranked[0].Model)
	assert.Equal(t, "bad", ranked[1].Model)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestGetStats_ReturnsCopy(t *testing.T) {
	tr := NewTracker("", nil)
	tr.RecordSuccess("openai", "gpt", 2*time.Second)

	s := tr.GetStats("openai", "gpt")
	require.NotNil(t, s)
	assert.Equal(t, int64(1), s.SuccessCount)
	assert.Equal(t, int64(2000), s.TotalDurationMS)

	s.SuccessCount = 99
	assert.Equal(t, int64(1), tr.GetStats("openai", "gpt").SuccessCount)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "model_perf.json")

	t1 := NewTracker(statePath, nil)
	t1.RecordSuccess("openrouter", "model-a", time.Second)
	t1.RecordFailure("openrouter", "model-a")
	require.NoError(t, t1.Save())

	t2 := NewTracker(statePath, nil)
	s := t2.GetStats("openrouter", "model-a")
	require.NotNil(t, s)
	assert.Equal(t, int64(2), s.CallCount)
	assert.Equal(t, int64(1), s.SuccessCount)
	assert.Equal(t, int64(1), s.FailureCount)
}
