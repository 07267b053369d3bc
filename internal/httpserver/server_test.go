package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/proxy"
	"github.com/opencode-ai/sandbox-gateway/internal/sessionstore"
)

func newTestServer(t *testing.T, cfg *Config) (*Server, *sessionstore.Store) {
	t.Helper()
	store, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	sessions := sessionstore.New(store)
	registry := proxy.NewRegistry()
	mcp := server.NewMCPServer("sandbox-gateway", "1.0.0")

	s := New(cfg, sessions, proxy.New("/proxy", registry, nil, nil), mcp, func(sandboxID string) string {
		return "http://sandbox." + sandboxID + ".invalid"
	})
	return s, sessions
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestMcpRequiresBearer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthToken = "secret-token"
	s, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSessionRedirectSetsCookieAndLocation(t *testing.T) {
	s, sessions := newTestServer(t, DefaultConfig())
	require.NoError(t, sessions.Put(t.Context(), &sessionstore.Session{
		SessionID:     "abc12345",
		SandboxID:     "abc12345",
		Status:        sessionstore.StatusActive,
		WorkspacePath: "/workspace",
	}))

	req := httptest.NewRequest(http.MethodGet, "/session/abc12345", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "/session")
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "opencode_session_id=abc12345")
}

func TestSessionRedirectMissingSessionIs404(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	req := httptest.NewRequest(http.MethodGet, "/session/doesnotexist", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDefaultWithoutCookieReturnsInfoListing(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sandbox-gateway")
}

func TestDefaultWithCookieTunnelsToSandbox(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("sandbox-ui"))
	}))
	defer upstream.Close()

	cfg := DefaultConfig()
	s, sessions := newTestServer(t, cfg)
	s.sandboxOrigin = func(sandboxID string) string { return upstream.URL }
	require.NoError(t, sessions.Put(t.Context(), &sessionstore.Session{
		SessionID: "abc12345", SandboxID: "abc12345", Status: sessionstore.StatusActive, WorkspacePath: "/workspace",
	}))

	req := httptest.NewRequest(http.MethodGet, "/some/ui/path", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "abc12345"})
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "sandbox-ui", rr.Body.String())
}
