package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
	"github.com/opencode-ai/sandbox-gateway/internal/logging"
	"github.com/opencode-ai/sandbox-gateway/internal/token"
)

var tracer = otel.Tracer("sandbox-gateway/proxy")

// Verifier abstracts token verification so Proxy doesn't depend on a
// concrete signing secret holder.
type Verifier func(tokenString string) (*token.Claims, error)

// Proxy is the authenticating reverse proxy: the only component in direct
// contact with untrusted sandbox egress.
type Proxy struct {
	MountPath string
	Registry  *Registry
	Verify    Verifier
	Client    *http.Client
}

// New builds a Proxy forwarding with client (http.DefaultClient if nil).
func New(mountPath string, registry *Registry, verify Verifier, client *http.Client) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &Proxy{MountPath: mountPath, Registry: registry, Verify: verify, Client: client}
}

// ServeHTTP parses the service from the request path, verifies the proxy
// token, applies the service's credential transform, and forwards the
// rewritten request upstream.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "proxy.forward",
		trace.WithAttributes(attribute.String("http.path", r.URL.Path)))
	defer span.End()
	r = r.WithContext(ctx)

	parsed, err := ParsePath(p.MountPath, r.URL.Path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeProxyError(w, http.StatusBadRequest, errs.CodeOf(err), err.(*errs.Error).Message)
		return
	}
	span.SetAttributes(attribute.String("proxy.service", parsed.Service))

	svc, ok := p.Registry.Lookup(parsed.Service)
	if !ok {
		span.SetStatus(codes.Error, "service not found")
		writeProxyError(w, http.StatusNotFound, "PROXY_SERVICE_NOT_FOUND",
			fmt.Sprintf("service %q not found; available: %v", parsed.Service, p.Registry.Names()))
		return
	}

	tokenStr := svc.Validate(r)
	if tokenStr == "" {
		writeProxyError(w, http.StatusUnauthorized, "PROXY_TOKEN_MISSING", "proxy token missing")
		return
	}

	claims, err := p.Verify(tokenStr)
	if err != nil {
		if verr, ok := err.(*token.VerifyError); ok && verr.Failure == token.FailureExpired {
			writeProxyError(w, http.StatusUnauthorized, "PROXY_TOKEN_EXPIRED", "proxy token expired")
		} else {
			writeProxyError(w, http.StatusUnauthorized, "PROXY_TOKEN_INVALID", "proxy token invalid")
		}
		return
	}

	upstreamURL := BuildTargetURL(svc.Target, parsed.TargetPath, r.URL.RawQuery)

	fwd, err := buildForwardRequest(r, upstreamURL)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, "PROXY_PATH_INVALID", "could not build upstream request")
		return
	}

	result, err := svc.Transform(fwd, Context{SandboxID: claims.SandboxID, SessionID: claims.SessionID})
	if err != nil {
		writeProxyError(w, http.StatusInternalServerError, "PROXY_TRANSFORM_ERROR", err.Error())
		return
	}
	if result.Response != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.Response.StatusCode)
		_, _ = w.Write([]byte(result.Response.Body))
		return
	}

	resp, err := p.Client.Do(result.Request)
	if err != nil {
		logging.Error().Err(err).Str("target", svc.Target).Msg("proxy upstream request failed")
		writeProxyError(w, http.StatusBadGateway, "PROXY_TARGET_ERROR", fmt.Sprintf("upstream %q unreachable", svc.Target))
		return
	}
	defer resp.Body.Close()

	passThrough(w, resp)
}

func buildForwardRequest(r *http.Request, upstreamURL string) (*http.Request, error) {
	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	fwd, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, body)
	if err != nil {
		return nil, err
	}
	for k, vv := range r.Header {
		for _, v := range vv {
			fwd.Header.Add(k, v)
		}
	}
	return fwd, nil
}

// hopByHopHeaders are stripped before relaying the upstream response,
// matching RFC 7230 §6.1.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

func passThrough(w http.ResponseWriter, resp *http.Response) {
	dst := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}

	if flusher, ok := w.(http.Flusher); ok && isEventStream(resp.Header) {
		w.WriteHeader(resp.StatusCode)
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				_, _ = w.Write(buf[:n])
				flusher.Flush()
			}
			if err != nil {
				return
			}
		}
	}

	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func isEventStream(h http.Header) bool {
	return h.Get("Content-Type") == "text/event-stream"
}

func writeProxyError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
