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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/types"
)

// OllamaClient streams chat completions from an Ollama server's native
// /api/chat endpoint (newline-delimited JSON).
type OllamaClient struct {
	name    string
	baseURL string
	http    *http.Client
	parse   ToolCallParseFunc
	logger  *zap.Logger
}

// NewOllamaClient creates a client for the Ollama instance at baseURL.
func NewOllamaClient(name, baseURL string, parse ToolCallParseFunc, logger *zap.Logger) *OllamaClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Minute},
		parse:   parse,
		logger:  logger,
	}
}

// Name implements Provider.
func (c *OllamaClient) Name() string { return c.name }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// StreamCompletion implements Provider.
func (c *OllamaClient) StreamCompletion(ctx context.Context, req types.ChatRequest) (<-chan types.StreamEvent, error) {
	body := ollamaChatRequest{
		Model:  req.Model,
		Stream: true,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, ollamaMessage{
			Role:    WireRole(msg.Role),
			Content: WireContent(msg),
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &APIError{Provider: c.name, Model: req.Model, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{
			Provider:   c.name,
			Model:      req.Model,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("chat request rejected: %s", bytes.TrimSpace(msg)),
		}
	}

	out := make(chan types.StreamEvent, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		it := NewInterpreter(c.parse, c.logger)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("skipping unparseable stream line", zap.Error(err))
				continue
			}
			if chunk.Error != "" {
				out <- types.StreamEvent{
					Type: types.EventError,
					Err:  &APIError{Provider: c.name, Model: req.Model, Err: fmt.Errorf("%s", chunk.Error)},
				}
				return
			}
			it.Chunk(out, chunk.Message.Content)
			if chunk.Done {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			out <- types.StreamEvent{
				Type: types.EventError,
				Err:  &APIError{Provider: c.name, Model: req.Model, Err: fmt.Errorf("stream read failed: %w", err)},
			}
			return
		}
		it.Finish(out, req)
	}()
	return out, nil
}
