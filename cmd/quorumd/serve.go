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
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/quorum/pkg/failover"
	"github.com/teradata-labs/quorum/pkg/health"
	"github.com/teradata-labs/quorum/pkg/keys"
	"github.com/teradata-labs/quorum/pkg/llm"
	"github.com/teradata-labs/quorum/pkg/manager"
	"github.com/teradata-labs/quorum/pkg/models"
	"github.com/teradata-labs/quorum/pkg/perf"
	"github.com/teradata-labs/quorum/pkg/prompts"
	"github.com/teradata-labs/quorum/pkg/runtime"
	"github.com/teradata-labs/quorum/pkg/storage"
	"github.com/teradata-labs/quorum/pkg/summarizer"
	"github.com/teradata-labs/quorum/pkg/tools"
	"github.com/teradata-labs/quorum/pkg/tools/builtin"
	"github.com/teradata-labs/quorum/pkg/types"
	"github.com/teradata-labs/quorum/pkg/ui"
	"github.com/teradata-labs/quorum/pkg/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quorum agent runtime",
	Long: `Start the quorum daemon.

The daemon will:
- Bootstrap the agent population (admin + guardian) and restore any prior session
- Discover eligible models (local endpoints and configured remote catalogs)
- Run the PM manage, contamination sweep, and snapshot timers
- Serve the HTTP API with an SSE event stream on the specified port

Press Ctrl+C to gracefully shutdown.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	logger, err := buildLogger(config.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting quorum daemon", zap.String("version", rootCmd.Version))
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Info("config file loaded", zap.String("path", used))
	} else {
		logger.Info("no config file found, using defaults + environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, config.Storage.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	keyManager := keys.NewManager(config.LLM.ProviderAPIKeys,
		statePath(config.DataDir, "keys_state.json"), logger)
	tracker := perf.NewTracker(statePath(config.DataDir, "model_perf.json"), logger)

	discoverer, registry := buildModelCatalog(config, logger)
	tier := types.ModelTier(strings.ToUpper(config.LLM.ModelTier))
	if err := registry.Refresh(ctx, tier); err != nil {
		logger.Warn("model discovery failed, continuing with empty catalog", zap.Error(err))
	}

	toolRegistry := tools.NewRegistry()
	taskStore := builtin.NewTaskStore()
	builtin.RegisterAll(toolRegistry, taskStore)
	executor := tools.NewExecutor(toolRegistry, logger)

	promptRegistry, closePrompts, err := buildPromptRegistry(config, logger)
	if err != nil {
		logger.Fatal("failed to load prompts", zap.Error(err))
	}
	defer closePrompts()

	wf := workflow.NewManager(promptRegistry, config.Guardian.Principles, logger)

	parse := toolCallParser(toolRegistry)
	factory := llm.NewFactory(keyManager, parse, logger)
	for _, rp := range config.LLM.RemoteProviders {
		factory.RegisterRemote(rp.Name, rp.BaseURL)
	}

	guardian := buildGuardian(config, factory, promptRegistry, logger)
	monitor := health.NewMonitor(logger)
	cleaner := health.NewCleaner(config.Guardian.ContaminationPatterns, store, logger)
	summ := summarizer.New(guardian, config.LLM.ContextWindow, logger)
	fo := failover.NewHandler(registry, tracker, keyManager, discoverer, tier, logger)

	events := ui.NewSSEBroadcaster(logger)
	defer events.Close()

	mgr := manager.New(manager.Options{
		Store:        store,
		Events:       events,
		Workflow:     wf,
		Factory:      factory,
		ToolRegistry: toolRegistry,
		Executor:     executor,
		TaskStore:    taskStore,
		Guardian:     guardian,
		Monitor:      monitor,
		Cleaner:      cleaner,
		Summarizer:   summ,
		Failover:     fo,
		Tracker:      tracker,
		Runtime: runtime.Config{
			MaxCycleTurns:             config.Runtime.MaxCycleTurns,
			MaxReactivationRetries:    config.Runtime.MaxStreamRetries,
			MaxWorkersPerPM:           config.Runtime.MaxWorkersPerPM,
			PMManageUnproductiveLimit: config.Runtime.PMManageUnproductiveLimit,
		},
		DefaultProvider:       config.LLM.DefaultProvider,
		DefaultModel:          config.LLM.DefaultModel,
		Temperature:           config.LLM.Temperature,
		SandboxBaseDir:        config.Storage.ProjectsBaseDir,
		SnapshotBaseDir:       config.Storage.SnapshotDir,
		PMManageCheckInterval: time.Duration(config.Runtime.PMManageCheckIntervalSeconds) * time.Second,
		ProjectName:           config.Storage.ProjectName,
		SessionName:           config.Storage.SessionName,
	}, logger)

	if err := mgr.Bootstrap(ctx); err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	timers, err := mgr.StartTimers()
	if err != nil {
		logger.Fatal("failed to start timers", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Server.Host, config.Server.HTTPPort),
		Handler: buildMux(mgr, events),
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	timers.Stop()
	_ = srv.Shutdown(shutdownCtx)
	mgr.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func statePath(dataDir, name string) string {
	return dataDir + "/" + name
}

func buildLogger(cfg LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}
	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if cfg.File != "" {
		zapConfig.OutputPaths = []string{cfg.File}
		zapConfig.ErrorOutputPaths = []string{cfg.File}
	}
	return zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
}

func buildModelCatalog(cfg *Config, logger *zap.Logger) (*models.Discoverer, *models.Registry) {
	remotes := make([]models.RemoteProvider, 0, len(cfg.LLM.RemoteProviders))
	for _, rp := range cfg.LLM.RemoteProviders {
		remotes = append(remotes, models.RemoteProvider{
			Name:    rp.Name,
			BaseURL: rp.BaseURL,
			APIKey:  rp.APIKey,
		})
	}
	disc := models.NewDiscoverer(models.DiscovererConfig{
		LocalEndpoints:  cfg.LLM.LocalEndpoints,
		ScanEnabled:     cfg.LLM.ScanEnabled,
		ScanHosts:       cfg.LLM.ScanHosts,
		ScanPorts:       cfg.LLM.ScanPorts,
		ScanTimeout:     time.Duration(cfg.LLM.ScanTimeoutSeconds) * time.Second,
		RemoteProviders: remotes,
	}, logger)
	return disc, models.NewRegistry(disc, logger)
}

func buildPromptRegistry(cfg *Config, logger *zap.Logger) (prompts.Registry, func(), error) {
	if cfg.Prompts.Dir != "" {
		registry, err := prompts.NewFileRegistry(cfg.Prompts.Dir, cfg.Prompts.Overrides, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := registry.StartWatcher(); err != nil {
			logger.Warn("prompt hot reload unavailable", zap.Error(err))
		}
		logger.Info("prompt file registry loaded", zap.String("dir", cfg.Prompts.Dir))
		return registry, func() { _ = registry.Close() }, nil
	}
	return prompts.NewMapRegistry(cfg.Prompts.Overrides), func() {}, nil
}

func buildGuardian(cfg *Config, factory *llm.Factory, registry prompts.Registry, logger *zap.Logger) *health.Guardian {
	if !cfg.Guardian.Enabled {
		return health.NewGuardian(nil, "", registry, logger)
	}
	providerName := cfg.Guardian.Provider
	if providerName == "" {
		providerName = cfg.LLM.DefaultProvider
	}
	model := cfg.Guardian.Model
	if model == "" {
		model = cfg.LLM.DefaultModel
	}
	client, err := factory.ClientFor(providerName)
	if err != nil {
		logger.Warn("guardian provider unavailable, reviews disabled",
			zap.String("provider", providerName), zap.Error(err))
		return health.NewGuardian(nil, "", registry, logger)
	}
	return health.NewGuardian(client, model, registry, logger)
}

// toolCallParser adapts the XML tool-call parser to the stream
// interpreter's contract.
func toolCallParser(registry *tools.Registry) llm.ToolCallParseFunc {
	return func(text string) ([]types.ToolCall, []string) {
		parsed, parseErrs := tools.ParseToolCalls(text, registry)
		calls := make([]types.ToolCall, 0, len(parsed))
		for _, p := range parsed {
			calls = append(calls, types.ToolCall{
				ID:        uuid.NewString(),
				Name:      p.Name,
				Arguments: p.Args,
			})
		}
		var malformed []string
		for _, pe := range parseErrs {
			malformed = append(malformed, pe.Error())
		}
		return calls, malformed
	}
}

func buildMux(mgr *manager.Manager, events *ui.SSEBroadcaster) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /events", events.Handler())
	mux.HandleFunc("POST /api/message", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			httpError(w, http.StatusBadRequest, "text is required")
			return
		}
		if err := mgr.HandleUserMessage(r.Context(), req.Text); err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})
	mux.HandleFunc("POST /api/projects", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
			Plan  string `json:"plan"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
			httpError(w, http.StatusBadRequest, "title is required")
			return
		}
		pm, err := mgr.CreateProjectAndPMAgent(r.Context(), req.Title, req.Plan)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"pm_id": pm.ID})
	})
	mux.HandleFunc("POST /api/projects/approve", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PMID string `json:"pm_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PMID == "" {
			httpError(w, http.StatusBadRequest, "pm_id is required")
			return
		}
		if err := mgr.ApproveProject(req.PMID); err != nil {
			httpError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
	})
	mux.HandleFunc("POST /api/review", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AgentID string `json:"agent_id"`
			Approve bool   `json:"approve"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
			httpError(w, http.StatusBadRequest, "agent_id is required")
			return
		}
		if err := mgr.ResolveUserReview(r.Context(), req.AgentID, req.Approve); err != nil {
			httpError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	})
	mux.HandleFunc("GET /api/agents", func(w http.ResponseWriter, r *http.Request) {
		type agentView struct {
			ID      string `json:"id"`
			Kind    string `json:"kind"`
			Persona string `json:"persona"`
			State   string `json:"state"`
			Status  string `json:"status"`
			TeamID  string `json:"team_id,omitempty"`
		}
		agents := mgr.ListAgents()
		out := make([]agentView, 0, len(agents))
		for _, a := range agents {
			out = append(out, agentView{
				ID:      a.ID,
				Kind:    string(a.Kind),
				Persona: a.Persona,
				State:   a.State(),
				Status:  string(a.Status()),
				TeamID:  a.TeamID(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
