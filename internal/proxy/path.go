// Package proxy implements the authenticating reverse proxy: the only
// component in direct contact with untrusted sandbox egress.
package proxy

import (
	"strings"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
)

// ParsedPath is the result of matching a request path against the mount
// grammar {mountPath}/{service}/{targetPath?}.
type ParsedPath struct {
	Service    string
	TargetPath string // always starts with "/"
}

// normalizeMount strips any trailing slash from mountPath, e.g. "/proxy/" -> "/proxy".
func normalizeMount(mountPath string) string {
	return strings.TrimSuffix(mountPath, "/")
}

// ParsePath implements the mount grammar. Every input either returns
// a ParsedPath with a non-empty Service and a TargetPath starting with "/",
// or a Proxy error coded PROXY_PATH_INVALID; there is no third outcome.
func ParsePath(mountPath, requestPath string) (*ParsedPath, error) {
	mount := normalizeMount(mountPath)
	if !strings.HasPrefix(requestPath, mount) {
		return nil, errs.Proxy("PROXY_PATH_INVALID", "path does not match proxy mount")
	}
	remainder := requestPath[len(mount):]
	if !strings.HasPrefix(remainder, "/") {
		return nil, errs.Proxy("PROXY_PATH_INVALID", "path missing service segment")
	}
	remainder = remainder[1:] // drop the leading "/"
	if remainder == "" {
		return nil, errs.Proxy("PROXY_PATH_INVALID", "path missing service segment")
	}

	service := remainder
	target := "/"
	if idx := strings.IndexByte(remainder, '/'); idx >= 0 {
		service = remainder[:idx]
		target = remainder[idx:]
	}
	if service == "" {
		return nil, errs.Proxy("PROXY_PATH_INVALID", "path missing service segment")
	}
	return &ParsedPath{Service: service, TargetPath: target}, nil
}

// BuildTargetURL resolves targetPath (plus rawQuery, with or without its
// leading "?", or empty) against base, preserving base's own path prefix. base MUST
// be an absolute URL; targetPath MUST start with "/".
func BuildTargetURL(base, targetPath, rawQuery string) string {
	b := base
	if !strings.HasSuffix(b, "/") {
		b += "/"
	}
	t := strings.TrimPrefix(targetPath, "/")
	url := b + t
	if rawQuery != "" {
		if !strings.HasPrefix(rawQuery, "?") {
			rawQuery = "?" + rawQuery
		}
		url += rawQuery
	}
	return url
}

// RewriteLocalhost rewrites control-plane-local hostnames to their
// Docker-equivalent for local development; a no-op for any other host,
// including production public hostnames.
func RewriteLocalhost(rawURL string) string {
	replacer := strings.NewReplacer(
		"localhost", "host.docker.internal",
		"127.0.0.1", "host.docker.internal",
	)
	return replacer.Replace(rawURL)
}
