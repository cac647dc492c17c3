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
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/types"
)

// RemoteProvider describes a remote OpenAI-compatible model catalog.
type RemoteProvider struct {
	Name    string
	BaseURL string
	APIKey  string
}

// DiscovererConfig controls endpoint discovery.
type DiscovererConfig struct {
	// LocalEndpoints are probed unconditionally (loopback defaults).
	LocalEndpoints []string

	// ScanEnabled turns on the LAN port scan.
	ScanEnabled bool

	// ScanHosts and ScanPorts define the scan space.
	ScanHosts []string
	ScanPorts []int

	// ScanTimeout bounds each probe.
	ScanTimeout time.Duration

	// RemoteProviders are the configured remote catalogs.
	RemoteProviders []RemoteProvider
}

// DefaultLocalEndpoints are the loopback inference servers worth probing.
var DefaultLocalEndpoints = []string{
	"http://127.0.0.1:11434",
	"http://127.0.0.1:1234",
	"http://127.0.0.1:8080",
}

// Discoverer probes endpoints and remote catalogs for available models.
type Discoverer struct {
	cfg        DiscovererConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDiscoverer creates a discoverer.
func NewDiscoverer(cfg DiscovererConfig, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ScanTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if len(cfg.LocalEndpoints) == 0 {
		cfg.LocalEndpoints = DefaultLocalEndpoints
	}
	return &Discoverer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Discover probes local endpoints (and, per tier, remote providers) and
// returns every model found. Endpoint failures are collected but do not
// abort discovery.
func (d *Discoverer) Discover(ctx context.Context, tier types.ModelTier) ([]types.ModelInfo, error) {
	var out []types.ModelInfo
	var firstErr error

	endpoints := append([]string(nil), d.cfg.LocalEndpoints...)
	if d.cfg.ScanEnabled {
		for _, host := range d.cfg.ScanHosts {
			for _, port := range d.cfg.ScanPorts {
				endpoints = append(endpoints, fmt.Sprintf("http://%s:%d", host, port))
			}
		}
	}

	seen := make(map[string]bool)
	for _, endpoint := range endpoints {
		if seen[endpoint] {
			continue
		}
		seen[endpoint] = true

		found, err := d.probeLocal(ctx, endpoint)
		if err != nil {
			d.logger.Debug("endpoint probe failed", zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		out = append(out, found...)
	}

	if tier != types.TierLocal {
		for _, rp := range d.cfg.RemoteProviders {
			found, err := d.fetchRemote(ctx, rp)
			if err != nil {
				d.logger.Warn("remote catalog fetch failed", zap.String("provider", rp.Name), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			out = append(out, found...)
		}
	}

	return out, firstErr
}

// probeLocal tries Ollama's /api/tags first, then the OpenAI-style
// /v1/models listing. The provider is tagged with a unique name derived
// from the endpoint address.
func (d *Discoverer) probeLocal(ctx context.Context, endpoint string) ([]types.ModelInfo, error) {
	if found, err := d.probeOllama(ctx, endpoint); err == nil {
		return found, nil
	}
	return d.probeOpenAIStyle(ctx, endpoint)
}

type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Details struct {
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

type ollamaShowResponse struct {
	Details struct {
		ParameterSize string `json:"parameter_size"`
	} `json:"details"`
}

func (d *Discoverer) probeOllama(ctx context.Context, endpoint string) ([]types.ModelInfo, error) {
	var tags ollamaTagsResponse
	if err := d.getJSON(ctx, endpoint+"/api/tags", &tags); err != nil {
		return nil, err
	}

	provider := ProviderNameFor("ollama", endpoint)
	out := make([]types.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		params := ParseParameterSize(m.Details.ParameterSize)
		if params == 0 {
			// /api/tags omits details on older servers; /api/show has them.
			var show ollamaShowResponse
			body, _ := json.Marshal(map[string]string{"model": m.Name})
			if err := d.postJSON(ctx, endpoint+"/api/show", body, &show); err == nil {
				params = ParseParameterSize(show.Details.ParameterSize)
			}
		}
		out = append(out, types.ModelInfo{
			Provider:      provider,
			ID:            m.Name,
			NumParameters: params,
			Local:         true,
		})
	}
	return out, nil
}

type openAIModelsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		NParameters int64  `json:"n_parameters"`
	} `json:"data"`
}

func (d *Discoverer) probeOpenAIStyle(ctx context.Context, endpoint string) ([]types.ModelInfo, error) {
	var resp openAIModelsResponse
	if err := d.getJSON(ctx, endpoint+"/v1/models", &resp); err != nil {
		return nil, err
	}

	provider := ProviderNameFor("local_openai", endpoint)
	out := make([]types.ModelInfo, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, types.ModelInfo{
			Provider:      provider,
			ID:            m.ID,
			NumParameters: m.NParameters,
			Local:         true,
		})
	}
	return out, nil
}

// fetchRemote lists models from a remote OpenAI-compatible catalog.
func (d *Discoverer) fetchRemote(ctx context.Context, rp RemoteProvider) ([]types.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(rp.BaseURL, "/")+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if rp.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+rp.APIKey)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s catalog: %w", rp.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog %s returned status %d", rp.Name, resp.StatusCode)
	}

	var parsed openAIModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode %s catalog: %w", rp.Name, err)
	}

	out := make([]types.ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		out = append(out, types.ModelInfo{
			Provider:      rp.Name,
			ID:            m.ID,
			NumParameters: m.NParameters,
		})
	}
	return out, nil
}

// ProbeHealth reports whether the endpoint for a local provider responds.
// Remote providers are assumed reachable; failures surface on the call.
func (d *Discoverer) ProbeHealth(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// ProviderNameFor derives a unique provider name from an endpoint address,
// e.g. ollama + http://127.0.0.1:11434 → "ollama_127-0-0-1_11434".
func ProviderNameFor(kind, endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return kind
	}
	host := strings.ReplaceAll(u.Hostname(), ".", "-")
	if port := u.Port(); port != "" {
		return fmt.Sprintf("%s_%s_%s", kind, host, port)
	}
	return fmt.Sprintf("%s_%s", kind, host)
}

// EndpointFor inverts ProviderNameFor: "ollama_127-0-0-1_11434" →
// ("ollama", "http://127.0.0.1:11434", true). Names without an embedded
// endpoint return ok=false.
func EndpointFor(provider string) (kind, endpoint string, ok bool) {
	for _, k := range []string{"local_openai", "ollama"} {
		if !strings.HasPrefix(provider, k+"_") {
			continue
		}
		rest := strings.TrimPrefix(provider, k+"_")
		host := rest
		port := ""
		if i := strings.LastIndex(rest, "_"); i >= 0 {
			host, port = rest[:i], rest[i+1:]
		}
		host = strings.ReplaceAll(host, "-", ".")
		if port != "" {
			return k, fmt.Sprintf("http://%s:%s", host, port), true
		}
		return k, "http://" + host, true
	}
	return "", "", false
}

func (d *Discoverer) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (d *Discoverer) postJSON(ctx context.Context, url string, body []byte, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
