package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/opencode-ai/sandbox-gateway/internal/logging"
	"github.com/opencode-ai/sandbox-gateway/internal/proxy"
)

// PrepareParams carries everything EnsureSandboxReady needs to bring a
// sandbox from freshly-created to ready-to-execute.
type PrepareParams struct {
	WorkDir          string
	ProxyBaseURL     string
	ProxyToken       string
	RepositoryURL    string
	RepositoryBranch string
	RepoDir          string
	GitUserName      string
	GitUserEmail     string
	HasBackup        bool
	RestoreFunc      func(ctx context.Context) error
}

// agentStateDir is where the coding agent subprocess keeps its own
// session/provider state inside the sandbox workspace; a restored backup
// is unpacked here.
const agentStateDir = ".local/share/opencode"

// PrepareOutcome reports which preparation steps actually did work, so a
// caller observing the result (rather than guessing from its own input
// parameters) can tell a first-time setup from a no-op repeat call.
type PrepareOutcome struct {
	WorkspacePath   string
	RestoredBackup  bool
	ClonedRepo      bool
	ConfiguredProxy bool
}

// EnsureSandboxReady configures proxy environment variables, git identity
// and credential rewriting, restores a prior backup if one exists and the
// workspace doesn't already carry agent state, then clones or updates the
// target repository. It is idempotent: calling it again against a sandbox
// that is already fully prepared performs no further writes, reflected in
// the returned PrepareOutcome having every flag false.
func (c *Client) EnsureSandboxReady(ctx context.Context, p PrepareParams) (PrepareOutcome, error) {
	outcome := PrepareOutcome{WorkspacePath: p.WorkDir}

	envChanged, err := c.writeProxyEnv(ctx, p.WorkDir, p.ProxyBaseURL, p.ProxyToken)
	if err != nil {
		return outcome, err
	}
	gitChanged, err := c.configureGit(ctx, p.WorkDir, p.ProxyBaseURL, p.ProxyToken, p.GitUserName, p.GitUserEmail)
	if err != nil {
		return outcome, err
	}
	outcome.ConfiguredProxy = envChanged || gitChanged

	stateExists, err := c.FileExists(ctx, p.WorkDir+"/"+agentStateDir)
	if err != nil {
		return outcome, err
	}
	if !stateExists && p.HasBackup && p.RestoreFunc != nil {
		logging.Info().Str("workDir", p.WorkDir).Msg("restoring sandbox state from backup")
		if err := p.RestoreFunc(ctx); err != nil {
			return outcome, err
		}
		outcome.RestoredBackup = true
	}

	if p.RepositoryURL == "" {
		return outcome, nil
	}
	cloned, err := c.ensureRepoCheckedOut(ctx, p)
	if err != nil {
		return outcome, err
	}
	outcome.ClonedRepo = cloned
	return outcome, nil
}

// writeProxyEnv appends (without duplicating) the proxy routing variables
// to the sandbox's .env file so any process it launches can reach
// Anthropic/GitHub through the gateway proxy. Returns false when the file
// already carried these exact values, so a repeat call is a no-op.
func (c *Client) writeProxyEnv(ctx context.Context, workDir, proxyBaseURL, proxyToken string) (bool, error) {
	envPath := workDir + "/.env"
	existing, err := c.ReadFile(ctx, envPath)
	if err != nil {
		existing = nil // missing .env is fine, we create one
	}
	lines := map[string]string{
		"ANTHROPIC_BASE_URL": proxy.RewriteLocalhost(strings.TrimRight(proxyBaseURL, "/")) + "/anthropic",
		"ANTHROPIC_API_KEY":  proxyToken,
		"GITHUB_TOKEN":       proxyToken,
	}
	merged := mergeEnvLines(string(existing), lines)
	if merged == string(existing) {
		return false, nil
	}
	if err := c.WriteFile(ctx, envPath, []byte(merged)); err != nil {
		return false, err
	}
	return true, nil
}

// mergeEnvLines rewrites or appends key=value lines in content without
// disturbing unrelated lines or their order.
func mergeEnvLines(content string, kv map[string]string) string {
	seen := make(map[string]bool, len(kv))
	var out []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		replaced := false
		for k, v := range kv {
			if strings.HasPrefix(trimmed, k+"=") {
				out = append(out, fmt.Sprintf("%s=%s", k, v))
				seen[k] = true
				replaced = true
				break
			}
		}
		if !replaced && trimmed != "" {
			out = append(out, line)
		}
	}
	for k, v := range kv {
		if !seen[k] {
			out = append(out, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return strings.Join(out, "\n") + "\n"
}

// gitConfigEntry is one `git config --global <key> <value>` setting that
// configureGit enforces, checked before it's written so a repeat call with
// unchanged inputs doesn't re-run the command.
type gitConfigEntry struct {
	key   string
	value string
}

// configureGit rewrites the sandbox's global git config so outbound git
// traffic to github.com is routed through the local proxy carrying the
// session-scoped token. Returns false when every entry already held its
// desired value.
func (c *Client) configureGit(ctx context.Context, workDir, proxyBaseURL, proxyToken, userName, userEmail string) (bool, error) {
	if userName == "" {
		userName = "sandbox-gateway"
	}
	if userEmail == "" {
		userEmail = "sandbox-gateway@users.noreply.github.com"
	}
	rewriteTarget := proxy.RewriteLocalhost(strings.TrimRight(proxyBaseURL, "/")) + "/github"
	entries := []gitConfigEntry{
		{"user.name", userName},
		{"user.email", userEmail},
		{fmt.Sprintf("url.%s.insteadOf", rewriteTarget), "https://github.com"},
		{"http.extraHeader", "Authorization: Bearer " + proxyToken},
	}

	changed := false
	for _, entry := range entries {
		current, err := c.Exec(ctx, workDir, fmt.Sprintf("git config --global --get %q", entry.key))
		if err == nil && strings.TrimSpace(current.Stdout) == entry.value {
			continue
		}
		if _, err := c.Exec(ctx, workDir, fmt.Sprintf("git config --global %s %q", entry.key, entry.value)); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// ensureRepoCheckedOut clones the repository if it isn't present yet,
// otherwise fetches and checks out the target branch. Returns true only
// when a fresh clone happened.
func (c *Client) ensureRepoCheckedOut(ctx context.Context, p PrepareParams) (bool, error) {
	repoDir := p.RepoDir
	if repoDir == "" {
		repoDir = "workspace"
	}
	repoPath := p.WorkDir + "/" + repoDir
	exists, err := c.FileExists(ctx, repoPath+"/.git")
	if err != nil {
		return false, err
	}
	if exists {
		return false, c.GitFetchCheckout(ctx, repoPath, p.RepositoryBranch)
	}
	if err := c.GitClone(ctx, p.WorkDir, p.RepositoryURL, repoDir, p.RepositoryBranch); err != nil {
		return false, err
	}
	return true, nil
}
