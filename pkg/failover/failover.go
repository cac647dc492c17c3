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

// Package failover rebinds agents to working (provider, model, key)
// combinations after completion failures.
package failover

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/keys"
	"github.com/teradata-labs/quorum/pkg/llm"
	"github.com/teradata-labs/quorum/pkg/models"
	"github.com/teradata-labs/quorum/pkg/perf"
	"github.com/teradata-labs/quorum/pkg/types"
)

// ErrorClass buckets a completion failure by the correct reaction.
type ErrorClass string

const (
	// ClassKeyRelated means the credential is exhausted or rejected:
	// quarantine it and retry with a fresh key.
	ClassKeyRelated ErrorClass = "key_related"

	// ClassProviderDown means the endpoint is unreachable or erroring
	// server-side: leave the provider alone for now.
	ClassProviderDown ErrorClass = "provider_down"

	// ClassModelUnusable means this model will not work on this provider
	// (missing, rejected request shape): mark it tried and move on.
	ClassModelUnusable ErrorClass = "model_unusable"

	// ClassTransient covers everything else; a plain retry elsewhere.
	ClassTransient ErrorClass = "transient"
)

// Classify maps a provider failure to its error class.
func Classify(err error) ErrorClass {
	apiErr, ok := llm.AsAPIError(err)
	if !ok {
		return ClassTransient
	}
	switch {
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 402 ||
		apiErr.StatusCode == 403 || apiErr.StatusCode == 429:
		return ClassKeyRelated
	case apiErr.StatusCode == 400 || apiErr.StatusCode == 404 ||
		apiErr.StatusCode == 422:
		return ClassModelUnusable
	case apiErr.StatusCode == 0 || apiErr.StatusCode >= 500:
		return ClassProviderDown
	default:
		return ClassTransient
	}
}

// Decision is the outcome of a failover pass.
type Decision struct {
	// Rebound is true when the agent was bound to a new (provider,
	// model) pair and should be rescheduled.
	Rebound bool

	// Exhausted is true when no candidate remains; the agent parks in
	// the error status.
	Exhausted bool

	Provider string
	Model    string
	Class    ErrorClass
}

// Handler walks the ranked candidate list after failures.
type Handler struct {
	registry *models.Registry
	tracker  *perf.Tracker
	keys     *keys.Manager
	disc     *models.Discoverer
	tier     types.ModelTier
	logger   *zap.Logger
}

// NewHandler creates a failover handler operating within the given model
// tier.
func NewHandler(registry *models.Registry, tracker *perf.Tracker, km *keys.Manager, disc *models.Discoverer, tier types.ModelTier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		tracker:  tracker,
		keys:     km,
		disc:     disc,
		tier:     tier,
		logger:   logger,
	}
}

// HandleFailure records the failed attempt, applies the class-specific
// reaction, and binds the agent to the best untried candidate. The caller
// applies the returned decision: reschedule on Rebound, park on
// Exhausted.
func (h *Handler) HandleFailure(ctx context.Context, agent *types.Agent, failErr error) Decision {
	class := Classify(failErr)
	provider := agent.ProviderName
	model := agent.ModelID

	h.tracker.RecordFailure(provider, model)
	if agent.Failover == nil {
		agent.Failover = types.NewFailoverState()
	}
	h.markTried(agent, provider, model)

	h.logger.Warn("completion failed, running failover",
		zap.String("agent_id", agent.ID),
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("class", string(class)),
		zap.Error(failErr))

	if class == ClassKeyRelated && h.keys != nil {
		// Bench the exact key the failed request went out with. Fetching
		// a key here would rotate past it and bench a healthy neighbor.
		if apiErr, ok := llm.AsAPIError(failErr); ok && apiErr.KeyFingerprint != "" {
			agent.Failover.TriedExternalKeys[apiErr.KeyFingerprint] = true
			if err := h.keys.QuarantineFingerprint(provider, apiErr.KeyFingerprint, keys.DefaultQuarantineTTL); err != nil {
				h.logger.Warn("failed to quarantine key", zap.Error(err))
			}
		}
		// A fresh key gets a clean slate of models.
		agent.Failover.TriedModelsOnCurrentKey = make(map[string]bool)
	}

	next, ok := h.nextCandidate(ctx, agent)
	if !ok {
		h.logger.Error("failover exhausted all candidates", zap.String("agent_id", agent.ID))
		return Decision{Exhausted: true, Class: class}
	}

	agent.ProviderName = next.Provider
	agent.ModelID = next.ID
	h.logger.Info("agent rebound",
		zap.String("agent_id", agent.ID),
		zap.String("provider", next.Provider),
		zap.String("model", next.ID))
	return Decision{Rebound: true, Provider: next.Provider, Model: next.ID, Class: class}
}

// ResetAfterSuccess clears failover bookkeeping after a cycle completes.
func (h *Handler) ResetAfterSuccess(agent *types.Agent) {
	agent.Failover = types.NewFailoverState()
}

func (h *Handler) markTried(agent *types.Agent, provider, model string) {
	if _, _, local := models.EndpointFor(provider); local {
		agent.Failover.MarkLocalModelTried(provider, model)
		return
	}
	agent.Failover.TriedModelsOnCurrentKey[model] = true
}

// nextCandidate ranks the tier's eligible models and returns the first
// untried one whose provider answers a health probe (local) or still has
// a usable key (external).
func (h *Handler) nextCandidate(ctx context.Context, agent *types.Agent) (types.ModelInfo, bool) {
	candidates := h.registry.EligibleModels(h.tier)
	ranked := models.Rank(candidates, h.tracker, true)

	for _, m := range ranked {
		if h.tried(agent, m) {
			continue
		}
		if m.Local {
			if !h.probeLocal(ctx, m.Provider) {
				continue
			}
		} else if h.keys != nil && h.keys.GetActiveKeyConfig(m.Provider) == nil {
			continue
		}
		return m, true
	}
	return types.ModelInfo{}, false
}

func (h *Handler) tried(agent *types.Agent, m types.ModelInfo) bool {
	if m.Local {
		return agent.Failover.LocalModelTried(m.Provider, m.ID)
	}
	return agent.Failover.TriedModelsOnCurrentKey[m.ID]
}

func (h *Handler) probeLocal(ctx context.Context, provider string) bool {
	if h.disc == nil {
		return true
	}
	_, endpoint, ok := models.EndpointFor(provider)
	if !ok {
		return true
	}
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return h.disc.ProbeHealth(probeCtx, endpoint)
}

// Describe renders a short human-readable failure report for the UI.
func Describe(agentID string, d Decision, err error) string {
	if d.Exhausted {
		return fmt.Sprintf("agent %s: no usable model remains after %s failure: %v", agentID, d.Class, err)
	}
	return fmt.Sprintf("agent %s: switched to %s/%s after %s failure", agentID, d.Provider, d.Model, d.Class)
}
