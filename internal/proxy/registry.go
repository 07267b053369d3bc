package proxy

import (
	"fmt"
	"net/http"
)

// Context carries per-request values a transform needs.
type Context struct {
	SandboxID string
	SessionID string
}

// TransformResult is either a rewritten request (Request non-nil) or a
// short-circuit response (Response non-nil) that bypasses forwarding
// entirely.
type TransformResult struct {
	Request  *http.Request
	Response *ShortCircuitResponse
}

// ShortCircuitResponse is written directly to the client without forwarding.
type ShortCircuitResponse struct {
	StatusCode int
	Body       string
}

// Service describes one upstream the proxy can forward to.
type Service struct {
	// Target is the upstream base URL.
	Target string
	// Validate extracts the proxy token from the request, or "" if absent.
	Validate func(r *http.Request) string
	// Transform injects real credentials into the forwardable request built
	// from the original, given resolved Context.
	Transform func(r *http.Request, ctx Context) (*TransformResult, error)
}

// Registry maps service names to their Service record.
type Registry struct {
	services map[string]Service
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds or replaces the Service for name.
func (r *Registry) Register(name string, svc Service) {
	r.services[name] = svc
}

// Lookup returns the Service for name, or (zero, false) if unregistered.
func (r *Registry) Lookup(name string) (Service, bool) {
	svc, ok := r.services[name]
	return svc, ok
}

// Names lists every registered service name, for the 404 error body.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for n := range r.services {
		names = append(names, n)
	}
	return names
}

func missingCredentialResponse(envVar string) *TransformResult {
	return &TransformResult{Response: &ShortCircuitResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       fmt.Sprintf(`{"error":"missing credential %s","code":"PROXY_CREDENTIAL_MISSING"}`, envVar),
	}}
}
