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
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/keys"
	"github.com/teradata-labs/quorum/pkg/types"
)

// AnthropicClient streams chat completions from the Anthropic Messages
// API. Primarily backs the guardian, which wants a dependable reviewer
// model independent of the worker population's bindings.
type AnthropicClient struct {
	name   string
	client anthropic.Client
	keyFP  string
	parse  ToolCallParseFunc
	logger *zap.Logger
}

// NewAnthropicClient creates a client bound to the given API key.
func NewAnthropicClient(name, apiKey string, parse ToolCallParseFunc, logger *zap.Logger) *AnthropicClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	keyFP := ""
	if apiKey != "" {
		keyFP = keys.Fingerprint(apiKey)
	}
	return &AnthropicClient{
		name:   name,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		keyFP:  keyFP,
		parse:  parse,
		logger: logger,
	}
}

// Name implements Provider.
func (c *AnthropicClient) Name() string { return c.name }

// StreamCompletion implements Provider.
func (c *AnthropicClient) StreamCompletion(ctx context.Context, req types.ChatRequest) (<-chan types.StreamEvent, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
	}

	// The Messages API takes the system prompt out of band.
	for _, msg := range req.Messages {
		switch WireRole(msg.Role) {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case "assistant":
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			// user and tool-result roles travel as user turns; tool
			// calls in this runtime are text-level XML, not native.
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(WireContent(msg))))
		}
	}

	out := make(chan types.StreamEvent, 16)
	go func() {
		defer close(out)

		it := NewInterpreter(c.parse, c.logger)
		stream := c.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					it.Chunk(out, delta.Text)
				case "thinking_delta":
					if delta.Thinking != "" {
						out <- types.StreamEvent{Type: types.EventAgentThought, Content: delta.Thinking}
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- types.StreamEvent{Type: types.EventError, Err: c.wrapErr(req.Model, err)}
			return
		}
		it.Finish(out, req)
	}()
	return out, nil
}

func (c *AnthropicClient) wrapErr(model string, err error) error {
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return &APIError{
		Provider:       c.name,
		Model:          model,
		StatusCode:     status,
		KeyFingerprint: c.keyFP,
		Err:            fmt.Errorf("messages stream failed: %w", err),
	}
}
