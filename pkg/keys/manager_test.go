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
package keys

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetActiveKeyConfig_RoundRobin(t *testing.T) {
	m := NewManager(map[string][]string{
		"openrouter": {"key-a", "key-b", "key-c"},
	}, "", nil)

	var seen []string
	for i := 0; i < 6; i++ {
		cfg := m.GetActiveKeyConfig("openrouter")
		require.NotNil(t, cfg)
		seen = append(seen, cfg.Key)
	}

	// Two full rotations, each key used exactly twice in order.
	assert.Equal(t, []string{"key-a", "key-b", "key-c", "key-a", "key-b", "key-c"}, seen)
}

func TestGetActiveKeyConfig_UnknownProvider(t *testing.T) {
	m := NewManager(nil, "", nil)
	assert.Nil(t, m.GetActiveKeyConfig("openrouter"))
}

func TestQuarantineKey_SkipsBenchedKeys(t *testing.T) {
	m := NewManager(map[string][]string{
		"openrouter": {"key-a", "key-b"},
	}, "", nil)

	require.NoError(t, m.QuarantineKey("openrouter", "key-a", time.Hour))
	assert.True(t, m.IsQuarantined("openrouter", "key-a"))
	assert.False(t, m.IsQuarantined("openrouter", "key-b"))

	for i := 0; i < 4; i++ {
		cfg := m.GetActiveKeyConfig("openrouter")
		require.NotNil(t, cfg)
		assert.Equal(t, "key-b", cfg.Key)
	}
}

func TestQuarantineFingerprint_BenchesExactKey(t *testing.T) {
	m := NewManager(map[string][]string{
		"openrouter": {"key-a", "key-b"},
	}, "", nil)

	// A caller holding only the fingerprint of the key it sent a failed
	// request with benches that exact key.
	require.NoError(t, m.QuarantineFingerprint("openrouter", Fingerprint("key-a"), time.Hour))
	assert.True(t, m.IsQuarantined("openrouter", "key-a"))
	assert.False(t, m.IsQuarantined("openrouter", "key-b"))
	assert.Equal(t, 1, m.QuarantinedCount())
}

func TestGetActiveKeyConfig_ProviderDepleted(t *testing.T) {
	m := NewManager(map[string][]string{
		"openrouter": {"key-a", "key-b"},
	}, "", nil)

	require.NoError(t, m.QuarantineKey("openrouter", "key-a", time.Hour))
	require.NoError(t, m.QuarantineKey("openrouter", "key-b", time.Hour))

	assert.Nil(t, m.GetActiveKeyConfig("openrouter"))
	assert.Equal(t, 2, m.QuarantinedCount())
}

func TestQuarantine_ExpiresAfterTTL(t *testing.T) {
	m := NewManager(map[string][]string{
		"openrouter": {"key-a"},
	}, "", nil)

	current := time.Now()
	m.now = func() time.Time { return current }

	require.NoError(t, m.QuarantineKey("openrouter", "key-a", DefaultQuarantineTTL))
	assert.Nil(t, m.GetActiveKeyConfig("openrouter"))

	// One second short of the TTL the key is still benched.
	current = current.Add(DefaultQuarantineTTL - time.Second)
	assert.True(t, m.IsQuarantined("openrouter", "key-a"))

	current = current.Add(2 * time.Second)
	assert.False(t, m.IsQuarantined("openrouter", "key-a"))
	cfg := m.GetActiveKeyConfig("openrouter")
	require.NotNil(t, cfg)
	assert.Equal(t, "key-a", cfg.Key)
	assert.Equal(t, 0, m.QuarantinedCount())
}

func TestQuarantineState_PersistsAcrossRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "keys_state.json")

	m1 := NewManager(map[string][]string{"openai": {"key-a"}}, statePath, nil)
	require.NoError(t, m1.QuarantineKey("openai", "key-a", time.Hour))

	m2 := NewManager(map[string][]string{"openai": {"key-a"}}, statePath, nil)
	assert.True(t, m2.IsQuarantined("openai", "key-a"))
	assert.Nil(t, m2.GetActiveKeyConfig("openai"))
}

func TestFingerprint_StableAndShort(t *testing.T) {
	fp := Fingerprint("sk-or-v1-abc")
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, Fingerprint("sk-or-v1-abc"))
	assert.NotEqual(t, fp, Fingerprint("sk-or-v1-abd"))
}
