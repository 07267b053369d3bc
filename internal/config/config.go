// Package config loads gateway configuration from a layered set of sources:
// a project config file (JSONC), then environment variable overrides, the
// same precedence order the rest of the pack uses for its own settings.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the gateway's components read at startup.
type Config struct {
	// Port is the control-plane HTTP listen port.
	Port int `json:"port"`

	// AuthToken gates POST /mcp (Authorization: Bearer <AuthToken>).
	AuthToken string `json:"-"`

	// ProxyJWTSecret signs and verifies proxy tokens (component B).
	ProxyJWTSecret string `json:"-"`

	// AnthropicAPIKey and GitHubToken are injected by proxy transforms.
	AnthropicAPIKey string `json:"-"`
	GitHubToken     string `json:"-"`

	// AnthropicBaseURL and GitHubBaseURL are the proxy's upstream targets.
	AnthropicBaseURL string `json:"anthropicBaseURL"`
	GitHubBaseURL    string `json:"gitHubBaseURL"`

	// ProxyMountPath is the mount segment parsed by the proxy engine, e.g. "/proxy".
	ProxyMountPath string `json:"proxyMountPath"`

	// DefaultModel seeds Session.config.defaultModel for new sessions.
	DefaultModel string `json:"defaultModel"`

	// ObjectStoreRoot is the fsstore base directory; when
	// ObjectStoreBackend == "s3" the bucket name comes from SessionsBucket
	// (SESSIONS_BUCKET) instead.
	ObjectStoreBackend string `json:"objectStoreBackend"`
	ObjectStoreRoot    string `json:"objectStoreRoot"`
	SessionsBucket     string `json:"-"`

	// SandboxBaseURL is the base URL of the external sandbox runtime RPC.
	SandboxBaseURL string `json:"sandboxBaseURL"`

	// AgentBaseURLTemplate locates the coding-agent subprocess's own HTTP
	// API; every "{sandboxId}" in it is replaced with the sandbox id.
	AgentBaseURLTemplate string `json:"agentBaseURLTemplate"`

	// TemporalHostPort and TaskQueue address the workflow engine.
	TemporalHostPort string `json:"temporalHostPort"`
	TaskQueue        string `json:"taskQueue"`

	// ProxyTokenTTL holds a default proxy-token lifetime. run_task does not
	// read it; it mints its tokens with a fixed "2h" lifetime.
	ProxyTokenTTL time.Duration `json:"-"`

	// BaseURL is this gateway's own externally reachable origin, used to
	// build webUiUrl values.
	BaseURL string `json:"baseURL"`
}

// Default returns settings safe for local development; secrets are empty
// and must come from the environment.
func Default() Config {
	return Config{
		Port:                 8080,
		ProxyMountPath:       "/proxy",
		DefaultModel:         "anthropic/claude-sonnet-4",
		ObjectStoreBackend:   "fs",
		ObjectStoreRoot:      "./data",
		SandboxBaseURL:       "http://localhost:9000",
		AgentBaseURLTemplate: "http://localhost:%d",
		TemporalHostPort:     "localhost:7233",
		TaskQueue:            "sandbox-gateway-tasks",
		ProxyTokenTTL:        2 * time.Hour,
		BaseURL:              "http://localhost:8080",
		AnthropicBaseURL:     "https://api.anthropic.com",
		GitHubBaseURL:        "https://github.com",
	}
}

// Load merges Default(), a project config file found under directory, and
// environment variable overrides, in that precedence order.
func Load(directory string) (*Config, error) {
	cfg := Default()

	if directory != "" {
		_ = loadConfigFile(filepath.Join(directory, ".sandbox-gateway", "config.json"), &cfg)
		_ = loadConfigFile(filepath.Join(directory, ".sandbox-gateway", "config.jsonc"), &cfg)
	}

	// .env is loaded best-effort; real process environment always wins.
	_ = godotenv.Load(filepath.Join(directory, ".env"))

	applyEnvOverrides(&cfg)

	if cfg.ProxyJWTSecret == "" {
		return nil, fmt.Errorf("config: PROXY_JWT_SECRET is required")
	}
	return &cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = stripJSONComments(data)

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	mergeConfig(cfg, &fileCfg)
	return nil
}

var singleLineComment = regexp.MustCompile(`//.*$`)
var multiLineComment = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripJSONComments removes // and /* */ comments from a JSONC document.
func stripJSONComments(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLineComment.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))
	return multiLineComment.ReplaceAll(data, nil)
}

func mergeConfig(target, source *Config) {
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.ProxyMountPath != "" {
		target.ProxyMountPath = source.ProxyMountPath
	}
	if source.DefaultModel != "" {
		target.DefaultModel = source.DefaultModel
	}
	if source.ObjectStoreBackend != "" {
		target.ObjectStoreBackend = source.ObjectStoreBackend
	}
	if source.ObjectStoreRoot != "" {
		target.ObjectStoreRoot = source.ObjectStoreRoot
	}
	if source.SandboxBaseURL != "" {
		target.SandboxBaseURL = source.SandboxBaseURL
	}
	if source.AgentBaseURLTemplate != "" {
		target.AgentBaseURLTemplate = source.AgentBaseURLTemplate
	}
	if source.TemporalHostPort != "" {
		target.TemporalHostPort = source.TemporalHostPort
	}
	if source.TaskQueue != "" {
		target.TaskQueue = source.TaskQueue
	}
	if source.BaseURL != "" {
		target.BaseURL = source.BaseURL
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Port)
	}
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("PROXY_JWT_SECRET"); v != "" {
		cfg.ProxyJWTSecret = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("SESSIONS_BUCKET"); v != "" {
		cfg.SessionsBucket = v
	}
	if v := os.Getenv("OBJECT_STORE_BACKEND"); v != "" {
		cfg.ObjectStoreBackend = v
	}
	if v := os.Getenv("OBJECT_STORE_ROOT"); v != "" {
		cfg.ObjectStoreRoot = v
	}
	if v := os.Getenv("SANDBOX_BASE_URL"); v != "" {
		cfg.SandboxBaseURL = v
	}
	if v := os.Getenv("TEMPORAL_HOST_PORT"); v != "" {
		cfg.TemporalHostPort = v
	}
	if v := os.Getenv("TASK_QUEUE"); v != "" {
		cfg.TaskQueue = v
	}
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
}

// Save writes cfg as indented JSON, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
