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

// Package keys manages provider API credentials: round-robin rotation
// across the configured keys of each provider, plus time-boxed quarantine
// of individual keys that triggered auth/rate-limit failures.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/storage"
)

// DefaultQuarantineTTL is how long a key stays benched after a key-related
// failure.
const DefaultQuarantineTTL = 24 * time.Hour

// KeyConfig is one usable credential returned to a caller.
type KeyConfig struct {
	Provider    string
	Key         string
	Fingerprint string
}

// Manager rotates API keys per provider and tracks quarantined keys.
// Safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	// provider → ordered credentials
	keys map[string][]string

	// provider → next rotation index
	indices map[string]int

	// "provider/fingerprint" → expiry epoch seconds
	quarantine map[string]int64

	statePath string
	now       func() time.Time
	logger    *zap.Logger
}

// NewManager creates a key manager over the given provider → keys map.
// statePath, when non-empty, is where quarantine state is persisted;
// existing state is loaded on construction.
func NewManager(providerKeys map[string][]string, statePath string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		keys:       make(map[string][]string, len(providerKeys)),
		indices:    make(map[string]int),
		quarantine: make(map[string]int64),
		statePath:  statePath,
		now:        time.Now,
		logger:     logger,
	}
	for provider, ks := range providerKeys {
		m.keys[provider] = append([]string(nil), ks...)
	}
	if statePath != "" {
		if err := m.loadState(); err != nil {
			logger.Warn("failed to load quarantine state, starting fresh", zap.Error(err))
		}
	}
	return m
}

// Fingerprint returns the short fingerprint used to identify a key without
// storing it.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// GetActiveKeyConfig returns the next non-quarantined credential for the
// provider, rotating the index. Returns nil when every key is quarantined
// (provider depleted) or the provider has no keys configured.
func (m *Manager) GetActiveKeyConfig(provider string) *KeyConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	ks := m.keys[provider]
	if len(ks) == 0 {
		return nil
	}

	m.reapExpiredLocked()

	start := m.indices[provider] % len(ks)
	for i := 0; i < len(ks); i++ {
		idx := (start + i) % len(ks)
		key := ks[idx]
		fp := Fingerprint(key)
		if _, benched := m.quarantine[quarantineKey(provider, fp)]; benched {
			continue
		}
		m.indices[provider] = idx + 1
		return &KeyConfig{Provider: provider, Key: key, Fingerprint: fp}
	}

	m.logger.Warn("provider depleted, all keys quarantined", zap.String("provider", provider))
	return nil
}

// QuarantineKey benches a key for ttl (DefaultQuarantineTTL when ttl <= 0)
// and persists the state.
func (m *Manager) QuarantineKey(provider, key string, ttl time.Duration) error {
	return m.QuarantineFingerprint(provider, Fingerprint(key), ttl)
}

// QuarantineFingerprint benches a key identified by its fingerprint.
// Callers that observed a failure on a specific credential use this to
// bench that exact key without consulting the rotation again.
func (m *Manager) QuarantineFingerprint(provider, fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultQuarantineTTL
	}
	expiry := m.now().Add(ttl).Unix()

	m.mu.Lock()
	m.quarantine[quarantineKey(provider, fingerprint)] = expiry
	m.reapExpiredLocked()
	err := m.saveStateLocked()
	m.mu.Unlock()

	m.logger.Info("key quarantined",
		zap.String("provider", provider),
		zap.String("fingerprint", fingerprint),
		zap.Duration("ttl", ttl))
	return err
}

// IsQuarantined reports whether the key is currently benched.
func (m *Manager) IsQuarantined(provider, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpiredLocked()
	_, ok := m.quarantine[quarantineKey(provider, Fingerprint(key))]
	return ok
}

// QuarantinedCount returns the number of non-expired quarantine entries.
func (m *Manager) QuarantinedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpiredLocked()
	return len(m.quarantine)
}

// KeyCount returns the number of keys configured for a provider.
func (m *Manager) KeyCount(provider string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys[provider])
}

// Providers returns the provider names with at least one key configured.
func (m *Manager) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.keys))
	for p := range m.keys {
		out = append(out, p)
	}
	return out
}

// reapExpiredLocked drops expired quarantine entries. Caller holds mu.
func (m *Manager) reapExpiredLocked() {
	nowUnix := m.now().Unix()
	for k, expiry := range m.quarantine {
		if expiry <= nowUnix {
			delete(m.quarantine, k)
		}
	}
}

// saveStateLocked persists quarantine state atomically. Caller holds mu.
func (m *Manager) saveStateLocked() error {
	if m.statePath == "" {
		return nil
	}
	if err := storage.AtomicWriteJSON(m.statePath, m.quarantine); err != nil {
		return fmt.Errorf("failed to save quarantine state: %w", err)
	}
	return nil
}

// loadState reads persisted quarantine state; missing file is fine.
func (m *Manager) loadState() error {
	data, err := os.ReadFile(m.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read quarantine state: %w", err)
	}
	state := make(map[string]int64)
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal quarantine state: %w", err)
	}
	m.mu.Lock()
	m.quarantine = state
	m.reapExpiredLocked()
	m.mu.Unlock()
	return nil
}

func quarantineKey(provider, fingerprint string) string {
	return provider + "/" + fingerprint
}
