package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, New(srv.URL, "sb-test")
}

func TestExecRoundTrip(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exec", r.URL.Path)
		assert.Equal(t, "sb-test", r.Header.Get("X-Sandbox-Id"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "echo hi", body["cmd"])
		_ = json.NewEncoder(w).Encode(ExecResult{ExitCode: 0, Stdout: "hi\n"})
	})

	result, err := client.Exec(context.Background(), "/workspace", "echo hi")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hi\n", result.Stdout)
}

func TestExecUpstreamErrorWrapped(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := client.Exec(context.Background(), "/workspace", "boom")
	require.Error(t, err)
}

func TestWriteThenReadFile(t *testing.T) {
	var stored []byte
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			stored, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			_, _ = w.Write(stored)
		}
	})

	require.NoError(t, client.WriteFile(context.Background(), "/workspace/.env", []byte("A=1")))
	got, err := client.ReadFile(context.Background(), "/workspace/.env")
	require.NoError(t, err)
	assert.Equal(t, "A=1", string(got))
}

func TestFileExists(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("path"), "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	ok, err := client.FileExists(context.Background(), "/workspace/.opencode")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.FileExists(context.Background(), "/workspace/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMergeEnvLinesRewritesInPlace(t *testing.T) {
	existing := "FOO=bar\nANTHROPIC_API_KEY=old\n"
	merged := mergeEnvLines(existing, map[string]string{
		"ANTHROPIC_API_KEY": "new",
		"GITHUB_TOKEN":      "tok",
	})
	assert.Contains(t, merged, "FOO=bar")
	assert.Contains(t, merged, "ANTHROPIC_API_KEY=new")
	assert.NotContains(t, merged, "ANTHROPIC_API_KEY=old")
	assert.Contains(t, merged, "GITHUB_TOKEN=tok")
}

func TestEnsureSandboxReadyClonesWhenNoRepo(t *testing.T) {
	var cloned bool
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/file":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/file":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead && r.URL.Path == "/file":
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/exec":
			_ = json.NewEncoder(w).Encode(ExecResult{ExitCode: 0})
		case r.URL.Path == "/git/clone":
			cloned = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	outcome, err := client.EnsureSandboxReady(context.Background(), PrepareParams{
		WorkDir:          "/workspace",
		ProxyBaseURL:     "http://localhost:8080/proxy",
		ProxyToken:       "tok",
		RepositoryURL:    "https://github.com/acme/widgets",
		RepositoryBranch: "main",
	})
	require.NoError(t, err)
	assert.True(t, cloned)
	assert.True(t, outcome.ClonedRepo)
	assert.True(t, outcome.ConfiguredProxy)
	assert.Equal(t, "/workspace", outcome.WorkspacePath)
}

// TestEnsureSandboxReadyIsIdempotent models a sandbox server with real
// state: .env contents, git config values and a cloned repo all persist
// across calls. A second EnsureSandboxReady call against the same sandbox
// should find everything already in place and report no further changes.
func TestEnsureSandboxReadyIsIdempotent(t *testing.T) {
	var envFile []byte
	gitConfig := make(map[string]string)
	repoCloned := false

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		switch {
		case r.Method == http.MethodHead && strings.HasSuffix(path, "/.git"):
			if repoCloned {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodHead && r.URL.Path == "/file":
			// agent state dir check: never present in this scenario
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet && r.URL.Path == "/file":
			if envFile == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(envFile)
		case r.Method == http.MethodPut && r.URL.Path == "/file":
			body, _ := io.ReadAll(r.Body)
			envFile = body
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/exec":
			var body struct {
				Cmd string `json:"cmd"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if strings.Contains(body.Cmd, "--get") {
				key := strings.TrimPrefix(body.Cmd, "git config --global --get ")
				key = strings.Trim(key, `"`)
				_ = json.NewEncoder(w).Encode(ExecResult{ExitCode: 0, Stdout: gitConfig[key]})
				return
			}
			// git config --global <key> <value>, quoted value(s) at the end
			fields := strings.SplitN(strings.TrimPrefix(body.Cmd, "git config --global "), " ", 2)
			if len(fields) == 2 {
				gitConfig[fields[0]] = strings.Trim(fields[1], `"`)
			}
			_ = json.NewEncoder(w).Encode(ExecResult{ExitCode: 0})
		case r.URL.Path == "/git/clone":
			repoCloned = true
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/git/fetch":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	params := PrepareParams{
		WorkDir:          "/workspace",
		ProxyBaseURL:     "http://localhost:8080/proxy",
		ProxyToken:       "tok",
		RepositoryURL:    "https://github.com/acme/widgets",
		RepositoryBranch: "main",
	}

	first, err := client.EnsureSandboxReady(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, first.ConfiguredProxy)
	assert.True(t, first.ClonedRepo)

	second, err := client.EnsureSandboxReady(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, second.ConfiguredProxy)
	assert.False(t, second.ClonedRepo)
	assert.False(t, second.RestoredBackup)
}
