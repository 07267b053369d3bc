// Package httpserver assembles the gateway's front-door HTTP surface:
// health probe, the MCP tool RPC, the authenticating proxy, and the
// browser-facing session redirect/tunnel, on top of a chi middleware stack.
package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
	"github.com/opencode-ai/sandbox-gateway/internal/logging"
	"github.com/opencode-ai/sandbox-gateway/internal/proxy"
	"github.com/opencode-ai/sandbox-gateway/internal/sessionstore"
)

// sessionCookieName carries the resolved session id for tunneled browser
// traffic after the initial /session/{id} redirect.
const sessionCookieName = "opencode_session_id"

// Config holds server configuration.
type Config struct {
	Port         int
	AuthToken    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns settings safe for local development.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout; MCP and proxy traffic includes SSE
	}
}

// Server is the top-level HTTP server wiring every external interface.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	sessions *sessionstore.Store
	proxy    *proxy.Proxy
	mcp      *server.MCPServer

	// sandboxOrigin resolves a sandboxId to the base URL of its tunneled
	// agent/UI endpoint, e.g. "http://sandbox-{id}.internal:4096".
	sandboxOrigin func(sandboxID string) string

	sandboxClient *http.Client
}

// New builds a Server. mcpServer is mounted at /mcp over the
// streamable-HTTP transport; proxyEngine handles /proxy/*.
func New(cfg *Config, sessions *sessionstore.Store, proxyEngine *proxy.Proxy, mcpServer *server.MCPServer, sandboxOrigin func(sandboxID string) string) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:        cfg,
		router:        r,
		sessions:      sessions,
		proxy:         proxyEngine,
		mcp:           mcpServer,
		sandboxOrigin: sandboxOrigin,
		sandboxClient: &http.Client{Timeout: 0},
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.router.Route("/mcp", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Handle("/*", server.NewStreamableHTTPServer(s.mcp))
		r.Handle("/", server.NewStreamableHTTPServer(s.mcp))
	})

	s.router.Handle("/proxy/*", s.proxy)

	s.router.Get("/session/{id}", s.handleSessionRedirect)
	s.router.Get("/session/{id}/", s.handleSessionRedirect)

	s.router.NotFound(s.handleDefault)
}

// requireBearer enforces AUTH_TOKEN on the tool RPC surface.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.config.AuthToken == "" || got != s.config.AuthToken {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleSessionRedirect implements the GET /session/{8-hex} entry point.
func (s *Server) handleSessionRedirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, errs.CodeOf(err), err.Error())
		return
	}
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, errs.CodeOf(errs.SessionNotFound(id)), "session not found")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.SessionID,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(sess.WorkspacePath))
	location := fmt.Sprintf("/%s/session", encodedPath)
	if sess.OpencodeSessionID != "" {
		location += "/" + sess.OpencodeSessionID
	}
	origin := originOf(r)
	location += "?url=" + origin

	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// handleDefault either tunnels a cookie-bearing request to the sandbox or
// renders the informational JSON listing.
func (s *Server) handleDefault(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeInfoListing(w)
		return
	}

	sess, err := s.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, errs.CodeOf(err), err.Error())
		return
	}
	if sess == nil {
		writeInfoListing(w)
		return
	}

	s.tunnelToSandbox(w, r, sess.SandboxID)
}

func (s *Server) tunnelToSandbox(w http.ResponseWriter, r *http.Request, sandboxID string) {
	origin := s.sandboxOrigin(sandboxID)
	upstreamURL := strings.TrimRight(origin, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	fwd, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "TUNNEL_REQUEST_INVALID", err.Error())
		return
	}
	for k, vv := range r.Header {
		for _, v := range vv {
			fwd.Header.Add(k, v)
		}
	}

	resp, err := s.sandboxClient.Do(fwd)
	if err != nil {
		logging.Error().Err(err).Str("sandboxId", sandboxID).Msg("sandbox tunnel request failed")
		writeJSONError(w, http.StatusBadGateway, "TUNNEL_TARGET_ERROR", fmt.Sprintf("sandbox %q unreachable", sandboxID))
		return
	}
	defer resp.Body.Close()

	dst := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func writeInfoListing(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service": "sandbox-gateway",
		"endpoints": []string{
			"GET /health",
			"POST /mcp",
			"ANY /proxy/{service}/...",
			"GET /session/{id}",
		},
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

func originOf(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux { return s.router }
