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
package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/keys"
	"github.com/teradata-labs/quorum/pkg/models"
)

// Base URLs for the known external providers.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OpenAIBaseURL     = "https://api.openai.com/v1"
)

// Factory builds Provider clients on demand, resolving credentials
// through the key manager so every client is bound to the currently
// active (non-quarantined) key for its provider.
type Factory struct {
	keys    *keys.Manager
	parse   ToolCallParseFunc
	remotes map[string]string
	logger  *zap.Logger
}

// NewFactory creates a provider factory.
func NewFactory(km *keys.Manager, parse ToolCallParseFunc, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		keys:    km,
		parse:   parse,
		remotes: make(map[string]string),
		logger:  logger,
	}
}

// RegisterRemote maps a configured remote catalog name to its
// OpenAI-compatible base URL.
func (f *Factory) RegisterRemote(name, baseURL string) {
	f.remotes[name] = strings.TrimRight(baseURL, "/")
}

// ClientFor resolves a provider name to a ready client. Local provider
// names carry their endpoint ("ollama_127-0-0-1_11434"); external names
// ("openrouter", "openai", "anthropic") pull the active key from the key
// manager and fail when every key is quarantined.
func (f *Factory) ClientFor(provider string) (Provider, error) {
	if kind, endpoint, ok := models.EndpointFor(provider); ok {
		switch kind {
		case "ollama":
			return NewOllamaClient(provider, endpoint, f.parse, f.logger), nil
		case "local_openai":
			return NewOpenAICompatClient(provider, endpoint+"/v1", "", f.parse, f.logger), nil
		}
	}

	switch {
	case provider == "openrouter":
		key, err := f.activeKey(provider)
		if err != nil {
			return nil, err
		}
		return NewOpenAICompatClient(provider, OpenRouterBaseURL, key, f.parse, f.logger), nil
	case provider == "openai":
		key, err := f.activeKey(provider)
		if err != nil {
			return nil, err
		}
		return NewOpenAICompatClient(provider, OpenAIBaseURL, key, f.parse, f.logger), nil
	case provider == "anthropic":
		key, err := f.activeKey(provider)
		if err != nil {
			return nil, err
		}
		return NewAnthropicClient(provider, key, f.parse, f.logger), nil
	}

	// Configured remote catalogs keep OpenAI wire compatibility.
	if baseURL, ok := f.remotes[provider]; ok {
		key, err := f.activeKey(provider)
		if err != nil {
			return nil, err
		}
		return NewOpenAICompatClient(provider, baseURL, key, f.parse, f.logger), nil
	}

	return nil, fmt.Errorf("unknown provider %q", provider)
}

func (f *Factory) activeKey(provider string) (string, error) {
	if f.keys == nil {
		return "", fmt.Errorf("no key manager configured for provider %s", provider)
	}
	cfg := f.keys.GetActiveKeyConfig(provider)
	if cfg == nil {
		return "", fmt.Errorf("no usable API key for provider %s (all quarantined or none configured)", provider)
	}
	return cfg.Key, nil
}
