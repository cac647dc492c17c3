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
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// ExecStats aggregates per-tool execution counters for periodic reporting.
type ExecStats struct {
	Calls     int64
	Successes int64
	Failures  int64
}

// Executor dispatches tool calls with authorization checks, JSON-schema
// argument validation, and error containment: a tool that panics or
// returns a Go error becomes an error Result, never a crashed cycle.
type Executor struct {
	registry *Registry
	logger   *zap.Logger

	mu    sync.Mutex
	stats map[string]*ExecStats
}

// NewExecutor creates a tool executor over the registry.
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		logger:   logger,
		stats:    make(map[string]*ExecStats),
	}
}

// Execute runs the named tool. The caller's privilege level gates
// authorization; arguments are validated against the declared schema
// before the body runs.
func (e *Executor) Execute(ctx context.Context, name string, level AuthLevel, inv *Invocation) (result *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = Errorf("tool %s panicked: %v", name, r)
		}
		e.record(name, result)
		e.logger.Debug("tool executed",
			zap.String("tool", name),
			zap.String("agent_id", inv.AgentID),
			zap.String("status", result.Status),
			zap.Duration("duration", time.Since(start)))
	}()

	tool, ok := e.registry.Get(name)
	if !ok {
		return Errorf("unknown tool: %s. Available tools: %s", name, strings.Join(e.registry.Names(), ", "))
	}

	schema := tool.Schema()
	if schema.Auth > level {
		return Errorf("tool %s requires %s authorization, caller has %s", name, schema.Auth, level)
	}

	if err := validateArgs(schema, inv.Args); err != nil {
		return Errorf("invalid arguments for %s: %v. Example: %s", name, err, schema.Example())
	}

	res, err := tool.Execute(ctx, inv)
	if err != nil {
		return Errorf("tool %s failed: %v", name, err)
	}
	if res == nil {
		return Errorf("tool %s returned no result", name)
	}
	return res
}

// Stats returns a copy of the per-tool counters.
func (e *Executor) Stats() map[string]ExecStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]ExecStats, len(e.stats))
	for name, s := range e.stats {
		out[name] = *s
	}
	return out
}

func (e *Executor) record(name string, res *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[name]
	if !ok {
		s = &ExecStats{}
		e.stats[name] = s
	}
	s.Calls++
	if res != nil && res.Status != StatusError {
		s.Successes++
	} else {
		s.Failures++
	}
}

// validateArgs checks the arguments against a JSON schema derived from the
// declared parameters.
func validateArgs(schema *Schema, args map[string]any) error {
	doc := map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties":           map[string]any{},
	}
	props := doc["properties"].(map[string]any)
	var required []string
	for _, p := range schema.Params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		props[p.Name] = map[string]any{"type": typ, "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	schemaJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}

	res, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(argsJSON))
	if err != nil {
		return fmt.Errorf("failed to validate arguments: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
