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
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/keys"
	"github.com/teradata-labs/quorum/pkg/types"
)

// OpenAICompatClient speaks the OpenAI chat-completions wire protocol.
// It covers OpenRouter, OpenAI itself, and local OpenAI-style servers
// (LM Studio, llama.cpp) via a custom base URL.
type OpenAICompatClient struct {
	name   string
	client *openai.Client
	keyFP  string
	parse  ToolCallParseFunc
	logger *zap.Logger
}

// NewOpenAICompatClient creates a client for the given provider name.
// apiKey may be empty for local servers.
func NewOpenAICompatClient(name, baseURL, apiKey string, parse ToolCallParseFunc, logger *zap.Logger) *OpenAICompatClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	keyFP := ""
	if apiKey != "" {
		keyFP = keys.Fingerprint(apiKey)
	}
	return &OpenAICompatClient{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
		keyFP:  keyFP,
		parse:  parse,
		logger: logger,
	}
}

// Name implements Provider.
func (c *OpenAICompatClient) Name() string { return c.name }

// StreamCompletion implements Provider.
func (c *OpenAICompatClient) StreamCompletion(ctx context.Context, req types.ChatRequest) (<-chan types.StreamEvent, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: float32(req.Temperature),
		Stream:      true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	for _, msg := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    WireRole(msg.Role),
			Content: WireContent(msg),
			Name:    msg.Name,
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, c.wrapErr(req.Model, err)
	}

	out := make(chan types.StreamEvent, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		it := NewInterpreter(c.parse, c.logger)
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				out <- types.StreamEvent{Type: types.EventError, Err: c.wrapErr(req.Model, err)}
				return
			}
			if len(resp.Choices) > 0 {
				it.Chunk(out, resp.Choices[0].Delta.Content)
			}
		}
		it.Finish(out, req)
	}()
	return out, nil
}

func (c *OpenAICompatClient) wrapErr(model string, err error) error {
	status := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}
	return &APIError{
		Provider:       c.name,
		Model:          model,
		StatusCode:     status,
		KeyFingerprint: c.keyFP,
		Err:            fmt.Errorf("chat completion failed: %w", err),
	}
}
