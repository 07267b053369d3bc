// Command sandbox-gateway is the control-plane server entry point: it
// serves the MCP tool surface and the browser-facing proxy/session routes,
// and runs the Temporal worker that executes task workflows.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/opencode-ai/sandbox-gateway/internal/agentio"
	"github.com/opencode-ai/sandbox-gateway/internal/config"
	"github.com/opencode-ai/sandbox-gateway/internal/dispatcher"
	"github.com/opencode-ai/sandbox-gateway/internal/httpserver"
	"github.com/opencode-ai/sandbox-gateway/internal/logging"
	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/proxy"
	"github.com/opencode-ai/sandbox-gateway/internal/runstore"
	"github.com/opencode-ai/sandbox-gateway/internal/sessionstore"
	"github.com/opencode-ai/sandbox-gateway/internal/token"
	"github.com/opencode-ai/sandbox-gateway/internal/workflow"
)

var (
	directory = flag.String("directory", "", "Project directory to load .sandbox-gateway/config.json and .env from")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "1.0.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("sandbox-gateway %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	objects, err := newObjectStore(cfg)
	if err != nil {
		log.Fatalf("failed to initialize object store: %v", err)
	}

	sessions := sessionstore.New(objects)
	runs := runstore.New(objects)

	temporalClient, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
	if err != nil {
		log.Fatalf("failed to dial temporal: %v", err)
	}
	defer temporalClient.Close()

	providerID, modelID := splitModel(cfg.DefaultModel)
	activities := &workflow.Activities{
		Runs:             runs,
		Sessions:         sessions,
		Objects:          objects,
		SandboxBaseURL:   cfg.SandboxBaseURL,
		AgentBaseURLTmpl: cfg.AgentBaseURLTemplate,
		AgentModel:       agentio.Model{ProviderID: providerID, ModelID: modelID},
	}

	w := worker.New(temporalClient, cfg.TaskQueue, worker.Options{})
	workflow.RegisterWorker(w, activities)
	if err := w.Start(); err != nil {
		log.Fatalf("failed to start temporal worker: %v", err)
	}
	defer w.Stop()

	starter := workflow.NewStarter(temporalClient, cfg.TaskQueue)

	d := &dispatcher.Dispatcher{
		Sessions:     sessions,
		Runs:         runs,
		Starter:      starter,
		ProxySecret:  cfg.ProxyJWTSecret,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.DefaultModel,
	}
	mcpServer := dispatcher.NewServer(d)

	registry := proxy.NewRegistry()
	registry.Register("anthropic", proxy.NewAnthropicService(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey))
	registry.Register("github", proxy.NewGitHubService(cfg.GitHubBaseURL, cfg.GitHubToken))
	proxyEngine := proxy.New(cfg.ProxyMountPath, registry, func(tokenString string) (*token.Claims, error) {
		return token.Verify(cfg.ProxyJWTSecret, tokenString)
	}, nil)

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Port = cfg.Port
	serverCfg.AuthToken = cfg.AuthToken

	srv := httpserver.New(serverCfg, sessions, proxyEngine, mcpServer, func(sandboxID string) string {
		return strings.ReplaceAll(cfg.AgentBaseURLTemplate, "{sandboxId}", sandboxID)
	})

	go func() {
		logging.Info().Int("port", cfg.Port).Msg("sandbox-gateway listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down sandbox-gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}
}

func newObjectStore(cfg *config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStoreBackend {
	case "s3":
		return objectstore.NewS3StoreFromEnv(context.Background(), cfg.SessionsBucket)
	default:
		return objectstore.NewFSStore(cfg.ObjectStoreRoot)
	}
}

func splitModel(model string) (providerID, modelID string) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "anthropic", model
}
