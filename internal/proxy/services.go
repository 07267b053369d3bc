package proxy

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
)

// gitPathAllowList restricts the github service to git's smart-HTTP
// transport only.
var gitPathAllowList = regexp.MustCompile(`^/.+/.+(\.git)?/(info/refs|git-upload-pack|git-receive-pack)$`)

// NewAnthropicService builds the "anthropic" service policy: token carried
// in x-api-key, transform swaps it for the real upstream key.
func NewAnthropicService(upstreamBase, apiKey string) Service {
	return Service{
		Target: upstreamBase,
		Validate: func(r *http.Request) string {
			return r.Header.Get("x-api-key")
		},
		Transform: func(r *http.Request, ctx Context) (*TransformResult, error) {
			if apiKey == "" {
				return missingCredentialResponse("ANTHROPIC_API_KEY"), nil
			}
			r.Header.Set("x-api-key", apiKey)
			return &TransformResult{Request: r}, nil
		},
	}
}

// NewGitHubService builds the "github" service policy: token carried as a
// bearer, path restricted to git's smart-HTTP transport, transform swaps in
// HTTP Basic auth with a fixed User-Agent.
func NewGitHubService(upstreamBase, githubToken string) Service {
	return Service{
		Target: upstreamBase,
		Validate: func(r *http.Request) string {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				return auth[len(prefix):]
			}
			return ""
		},
		Transform: func(r *http.Request, ctx Context) (*TransformResult, error) {
			if !gitPathAllowList.MatchString(r.URL.Path) {
				return &TransformResult{Response: &ShortCircuitResponse{
					StatusCode: http.StatusBadRequest,
					Body:       `Invalid git path`,
				}}, nil
			}
			if githubToken == "" {
				return missingCredentialResponse("GITHUB_TOKEN"), nil
			}
			basic := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("x-access-token:%s", githubToken)))
			r.Header.Set("Authorization", "Basic "+basic)
			r.Header.Set("User-Agent", "Sandbox-Git-Proxy")
			return &TransformResult{Request: r}, nil
		},
	}
}
