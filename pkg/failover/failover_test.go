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
package failover

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/quorum/pkg/keys"
	"github.com/teradata-labs/quorum/pkg/llm"
	"github.com/teradata-labs/quorum/pkg/models"
	"github.com/teradata-labs/quorum/pkg/perf"
	"github.com/teradata-labs/quorum/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{401, ClassKeyRelated},
		{402, ClassKeyRelated},
		{403, ClassKeyRelated},
		{429, ClassKeyRelated},
		{400, ClassModelUnusable},
		{404, ClassModelUnusable},
		{422, ClassModelUnusable},
		{0, ClassProviderDown},
		{500, ClassProviderDown},
		{503, ClassProviderDown},
		{418, ClassTransient},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := &llm.APIError{Provider: "openrouter", Model: "m", StatusCode: tt.status, Err: errors.New("boom")}
			assert.Equal(t, tt.want, Classify(err))
		})
	}

	assert.Equal(t, ClassTransient, Classify(errors.New("plain error")))
	wrapped := fmt.Errorf("cycle failed: %w", &llm.APIError{StatusCode: 429, Err: errors.New("rate limit")})
	assert.Equal(t, ClassKeyRelated, Classify(wrapped))
}

func newTestHandler(t *testing.T, catalog []types.ModelInfo, providerKeys map[string][]string) (*Handler, *keys.Manager) {
	t.Helper()
	registry := models.NewRegistry(nil, nil)
	registry.SetModels(catalog)
	tracker := perf.NewTracker(filepath.Join(t.TempDir(), "perf.json"), nil)
	km := keys.NewManager(providerKeys, filepath.Join(t.TempDir(), "keys.json"), nil)
	h := NewHandler(registry, tracker, km, nil, types.TierFree, nil)
	return h, km
}

func freeCatalog() []types.ModelInfo {
	return []types.ModelInfo{
		{ID: "meta/alpha:free", Provider: "openrouter"},
		{ID: "meta/beta:free", Provider: "openrouter"},
	}
}

func TestHandleFailure_KeyRelatedRotatesKey(t *testing.T) {
	h, km := newTestHandler(t, freeCatalog(), map[string][]string{
		"openrouter": {"key-1", "key-2"},
	})

	agent := types.NewAgent("worker-1", types.KindWorker, "Coder")
	agent.ProviderName = "openrouter"
	agent.ModelID = "meta/alpha:free"

	err := &llm.APIError{
		Provider:       "openrouter",
		Model:          agent.ModelID,
		StatusCode:     429,
		KeyFingerprint: keys.Fingerprint("key-1"),
		Err:            errors.New("rate limited"),
	}
	d := h.HandleFailure(context.Background(), agent, err)

	require.True(t, d.Rebound)
	assert.Equal(t, ClassKeyRelated, d.Class)
	assert.Equal(t, "openrouter", d.Provider)

	// The failing key was benched and the tried-model slate wiped, so the
	// top-ranked model is fair game again on the fresh key.
	assert.True(t, km.IsQuarantined("openrouter", "key-1"))
	assert.False(t, km.IsQuarantined("openrouter", "key-2"))
	assert.Empty(t, agent.Failover.TriedModelsOnCurrentKey)
	assert.Equal(t, d.Model, agent.ModelID)
}

func TestHandleFailure_QuarantinesTheKeyTheRequestUsed(t *testing.T) {
	h, km := newTestHandler(t, freeCatalog(), map[string][]string{
		"openrouter": {"key-1", "key-2"},
	})

	// The cycle resolves its client first, which consumes key-1 and
	// advances the rotation to key-2.
	cfg := km.GetActiveKeyConfig("openrouter")
	require.NotNil(t, cfg)
	require.Equal(t, "key-1", cfg.Key)

	agent := types.NewAgent("worker-1", types.KindWorker, "Coder")
	agent.ProviderName = "openrouter"
	agent.ModelID = "meta/alpha:free"

	err := &llm.APIError{
		Provider:       "openrouter",
		Model:          agent.ModelID,
		StatusCode:     429,
		KeyFingerprint: cfg.Fingerprint,
		Err:            errors.New("rate limited"),
	}
	d := h.HandleFailure(context.Background(), agent, err)

	require.True(t, d.Rebound)
	assert.True(t, km.IsQuarantined("openrouter", "key-1"))
	assert.False(t, km.IsQuarantined("openrouter", "key-2"))
	assert.True(t, agent.Failover.TriedExternalKeys[cfg.Fingerprint])

	// The rotation now only ever hands out the healthy key.
	next := km.GetActiveKeyConfig("openrouter")
	require.NotNil(t, next)
	assert.Equal(t, "key-2", next.Key)
}

func TestHandleFailure_ModelUnusableMovesToNextModel(t *testing.T) {
	h, _ := newTestHandler(t, freeCatalog(), map[string][]string{
		"openrouter": {"key-1"},
	})

	agent := types.NewAgent("worker-1", types.KindWorker, "Coder")
	agent.ProviderName = "openrouter"
	agent.ModelID = "meta/alpha:free"

	err := &llm.APIError{StatusCode: 404, Err: errors.New("model not found")}
	d := h.HandleFailure(context.Background(), agent, err)

	require.True(t, d.Rebound)
	assert.Equal(t, ClassModelUnusable, d.Class)
	assert.Equal(t, "meta/beta:free", agent.ModelID)
	assert.True(t, agent.Failover.TriedModelsOnCurrentKey["meta/alpha:free"])
}

func TestHandleFailure_ExhaustedWhenNoModelRemains(t *testing.T) {
	h, _ := newTestHandler(t, []types.ModelInfo{
		{ID: "meta/alpha:free", Provider: "openrouter"},
	}, map[string][]string{"openrouter": {"key-1"}})

	agent := types.NewAgent("worker-1", types.KindWorker, "Coder")
	agent.ProviderName = "openrouter"
	agent.ModelID = "meta/alpha:free"

	err := &llm.APIError{StatusCode: 404, Err: errors.New("model not found")}
	d := h.HandleFailure(context.Background(), agent, err)

	assert.False(t, d.Rebound)
	assert.True(t, d.Exhausted)
}

func TestHandleFailure_ExhaustedWhenAllKeysBenched(t *testing.T) {
	h, km := newTestHandler(t, freeCatalog(), map[string][]string{
		"openrouter": {"only-key"},
	})

	agent := types.NewAgent("worker-1", types.KindWorker, "Coder")
	agent.ProviderName = "openrouter"
	agent.ModelID = "meta/alpha:free"

	err := &llm.APIError{
		StatusCode:     401,
		KeyFingerprint: keys.Fingerprint("only-key"),
		Err:            errors.New("invalid key"),
	}
	d := h.HandleFailure(context.Background(), agent, err)

	assert.True(t, d.Exhausted)
	assert.Equal(t, 1, km.QuarantinedCount())
}

func TestResetAfterSuccess(t *testing.T) {
	h, _ := newTestHandler(t, freeCatalog(), nil)

	agent := types.NewAgent("worker-1", types.KindWorker, "Coder")
	agent.Failover = types.NewFailoverState()
	agent.Failover.TriedModelsOnCurrentKey["meta/alpha:free"] = true

	h.ResetAfterSuccess(agent)
	assert.Empty(t, agent.Failover.TriedModelsOnCurrentKey)
}

func TestDescribe(t *testing.T) {
	d := Decision{Rebound: true, Provider: "openrouter", Model: "meta/beta:free", Class: ClassModelUnusable}
	s := Describe("worker-1", d, errors.New("404"))
	assert.Contains(t, s, "switched to openrouter/meta/beta:free")

	d = Decision{Exhausted: true, Class: ClassKeyRelated}
	s = Describe("worker-1", d, errors.New("401"))
	assert.Contains(t, s, "no usable model remains")
}
