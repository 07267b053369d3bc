// Package sandbox is a thin client for the external sandbox runtime RPC:
// an opaque per-session container offering shell exec, file I/O, a
// git-checkout helper, and port exposure. The runtime itself is not part
// of this repository.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
)

// Client talks to one sandbox runtime instance over HTTP.
type Client struct {
	http      *resty.Client
	sandboxID string
}

// New returns a Client scoped to sandboxID, talking to the runtime at baseURL.
func New(baseURL, sandboxID string) *Client {
	return &Client{
		http:      resty.New().SetBaseURL(baseURL).SetHeader("X-Sandbox-Id", sandboxID),
		sandboxID: sandboxID,
	}
}

// ExecResult is the outcome of a shell command run inside the sandbox.
type ExecResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Exec runs cmd in the sandbox's workDir; default 30s timeout unless the
// caller's context already carries a different deadline.
func (c *Client) Exec(ctx context.Context, workDir, cmd string) (*ExecResult, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	var result ExecResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"workDir": workDir, "cmd": cmd}).
		SetResult(&result).
		Post("/exec")
	if err != nil {
		return nil, errs.SandboxAdapter("exec request failed", err)
	}
	if resp.IsError() {
		return nil, errs.SandboxAdapter(fmt.Sprintf("exec returned %s", resp.Status()), nil)
	}
	return &result, nil
}

// ReadFile streams a file's bytes out of the sandbox.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("path", path).Get("/file")
	if err != nil {
		return nil, errs.SandboxAdapter("read file failed", err)
	}
	if resp.IsError() {
		return nil, errs.SandboxAdapter(fmt.Sprintf("read file returned %s", resp.Status()), nil)
	}
	return resp.Body(), nil
}

// WriteFile writes body to path inside the sandbox, creating parent dirs.
func (c *Client) WriteFile(ctx context.Context, path string, body []byte) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetBody(body).
		Put("/file")
	if err != nil {
		return errs.SandboxAdapter("write file failed", err)
	}
	if resp.IsError() {
		return errs.SandboxAdapter(fmt.Sprintf("write file returned %s", resp.Status()), nil)
	}
	return nil
}

// FileExists checks for a path inside the sandbox.
func (c *Client) FileExists(ctx context.Context, path string) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("path", path).Head("/file")
	if err != nil {
		return false, errs.SandboxAdapter("stat file failed", err)
	}
	return resp.StatusCode() == 200, nil
}

// GitClone clones url into workDir/repoDir, default branch branch (empty -> "main").
func (c *Client) GitClone(ctx context.Context, workDir, url, repoDir, branch string) error {
	if branch == "" {
		branch = "main"
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"workDir": workDir, "url": url, "dir": repoDir, "branch": branch}).
		Post("/git/clone")
	if err != nil {
		return errs.SandboxAdapter("git clone failed", err)
	}
	if resp.IsError() {
		return errs.SandboxAdapter(fmt.Sprintf("git clone returned %s", resp.Status()), nil)
	}
	return nil
}

// GitFetchCheckout fetches and optionally checks out branch in an
// already-cloned repo.
func (c *Client) GitFetchCheckout(ctx context.Context, repoPath, branch string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"repoPath": repoPath, "branch": branch}).
		Post("/git/fetch")
	if err != nil {
		return errs.SandboxAdapter("git fetch failed", err)
	}
	if resp.IsError() {
		return errs.SandboxAdapter(fmt.Sprintf("git fetch returned %s", resp.Status()), nil)
	}
	return nil
}

// StartProcess launches a long-running background process (e.g. the coding
// agent subprocess) on the given port; it never times out from this side.
func (c *Client) StartProcess(ctx context.Context, workDir, cmd string, port int) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"workDir": workDir, "cmd": cmd, "port": port}).
		Post("/process/start")
	if err != nil {
		return errs.SandboxAdapter("start process failed", err)
	}
	if resp.IsError() {
		return errs.SandboxAdapter(fmt.Sprintf("start process returned %s", resp.Status()), nil)
	}
	return nil
}

// StopProcess stops the process previously started on port.
func (c *Client) StopProcess(ctx context.Context, port int) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(map[string]int{"port": port}).Post("/process/stop")
	if err != nil {
		return errs.SandboxAdapter("stop process failed", err)
	}
	if resp.IsError() {
		return errs.SandboxAdapter(fmt.Sprintf("stop process returned %s", resp.Status()), nil)
	}
	return nil
}

// ExposePort requests the runtime make port reachable and returns its
// externally addressable base URL.
func (c *Client) ExposePort(ctx context.Context, port int) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("port", fmt.Sprint(port)).SetResult(&result).Get("/expose")
	if err != nil {
		return "", errs.SandboxAdapter("expose port failed", err)
	}
	if resp.IsError() {
		return "", errs.SandboxAdapter(fmt.Sprintf("expose port returned %s", resp.Status()), nil)
	}
	return result.URL, nil
}
