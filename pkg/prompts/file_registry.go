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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileRegistry loads prompt templates from YAML files in a directory,
// layered over the built-in defaults. Files look like:
//
//	key: state.pm.manage
//	content: |
//	  ...template text...
//
// Edits are picked up automatically while the watcher runs.
type FileRegistry struct {
	rootDir  string
	fallback *MapRegistry
	logger   *zap.Logger

	mu        sync.RWMutex
	templates map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type promptFile struct {
	Key     string `yaml:"key"`
	Content string `yaml:"content"`
}

// NewFileRegistry creates a file registry rooted at dir. Built-in defaults
// (plus overrides) remain available for keys no file provides.
func NewFileRegistry(dir string, overrides map[string]string, logger *zap.Logger) (*FileRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileRegistry{
		rootDir:   dir,
		fallback:  NewMapRegistry(overrides),
		logger:    logger,
		templates: make(map[string]string),
		done:      make(chan struct{}),
	}
	if err := r.Reload(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Get implements Registry.
func (r *FileRegistry) Get(ctx context.Context, key string, vars map[string]any) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[key]
	r.mu.RUnlock()
	if ok {
		return Interpolate(tmpl, vars), nil
	}
	return r.fallback.Get(ctx, key, vars)
}

// List implements Registry.
func (r *FileRegistry) List(ctx context.Context) ([]string, error) {
	keys, err := r.fallback.List(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	r.mu.RLock()
	for k := range r.templates {
		set[k] = true
	}
	r.mu.RUnlock()
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Reload implements Registry: re-reads every .yaml file under rootDir.
func (r *FileRegistry) Reload(ctx context.Context) error {
	loaded := make(map[string]string)
	err := filepath.WalkDir(r.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var pf promptFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if pf.Key == "" {
			r.logger.Warn("prompt file missing key, skipped", zap.String("path", path))
			return nil
		}
		loaded[pf.Key] = pf.Content
		return nil
	})
	if os.IsNotExist(err) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to load prompt directory: %w", err)
	}

	r.mu.Lock()
	r.templates = loaded
	r.mu.Unlock()

	r.logger.Info("prompt templates loaded",
		zap.String("dir", r.rootDir),
		zap.Int("count", len(loaded)))
	return nil
}

// StartWatcher begins hot-reloading on file changes. Call Close to stop.
func (r *FileRegistry) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.rootDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", r.rootDir, err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := r.Reload(context.Background()); err != nil {
						r.logger.Warn("prompt hot reload failed", zap.Error(err))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("prompt watcher error", zap.Error(err))
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher.
func (r *FileRegistry) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
