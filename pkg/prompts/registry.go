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
package prompts

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry manages prompt template retrieval.
//
// Implementations can serve from built-in defaults, configuration maps, or
// files on disk. All templates support {{.variable}} interpolation.
type Registry interface {
	// Get retrieves a template by key with variable interpolation.
	Get(ctx context.Context, key string, vars map[string]any) (string, error)

	// List lists all available template keys.
	List(ctx context.Context) ([]string, error)

	// Reload re-reads templates from the source.
	Reload(ctx context.Context) error
}

// MapRegistry serves templates from an in-memory map, starting from the
// built-in defaults with optional overrides layered on top (the PROMPTS
// configuration map).
type MapRegistry struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewMapRegistry creates a registry of the built-in defaults with the
// given overrides applied.
func NewMapRegistry(overrides map[string]string) *MapRegistry {
	templates := make(map[string]string, len(defaultTemplates)+len(overrides))
	for k, v := range defaultTemplates {
		templates[k] = v
	}
	for k, v := range overrides {
		templates[k] = v
	}
	return &MapRegistry{templates: templates}
}

// Get implements Registry.
func (r *MapRegistry) Get(ctx context.Context, key string, vars map[string]any) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[key]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt template: %s", key)
	}
	return Interpolate(tmpl, vars), nil
}

// List implements Registry.
func (r *MapRegistry) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Reload implements Registry. A map registry has no external source.
func (r *MapRegistry) Reload(ctx context.Context) error {
	return nil
}

// Set replaces one template at runtime.
func (r *MapRegistry) Set(key, template string) {
	r.mu.Lock()
	r.templates[key] = template
	r.mu.Unlock()
}
