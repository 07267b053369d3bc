package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubServiceAllowListRejectsNonGitPath(t *testing.T) {
	svc := NewGitHubService("https://github.com/", "tok")
	r := httptest.NewRequest(http.MethodGet, "https://github.com/owner/repo/releases", nil)

	result, err := svc.Transform(r, Context{})
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	assert.Equal(t, http.StatusBadRequest, result.Response.StatusCode)
}

func TestGitHubServiceAllowsSmartHTTPPath(t *testing.T) {
	svc := NewGitHubService("https://github.com/", "tok")
	r := httptest.NewRequest(http.MethodGet, "https://github.com/u/r.git/info/refs?service=git-upload-pack", nil)

	result, err := svc.Transform(r, Context{})
	require.NoError(t, err)
	require.Nil(t, result.Response)
	assert.Equal(t, "Sandbox-Git-Proxy", result.Request.Header.Get("User-Agent"))
	assert.Contains(t, result.Request.Header.Get("Authorization"), "Basic ")
}

func TestGitHubServiceMissingCredential(t *testing.T) {
	svc := NewGitHubService("https://github.com/", "")
	r := httptest.NewRequest(http.MethodGet, "https://github.com/u/r.git/info/refs", nil)
	result, err := svc.Transform(r, Context{})
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	assert.Equal(t, http.StatusInternalServerError, result.Response.StatusCode)
}

func TestAnthropicServiceInjectsKey(t *testing.T) {
	svc := NewAnthropicService("https://api.anthropic.com/", "real-key")
	r := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	r.Header.Set("x-api-key", "proxy-token-looking-value")

	result, err := svc.Transform(r, Context{})
	require.NoError(t, err)
	require.Nil(t, result.Response)
	assert.Equal(t, "real-key", result.Request.Header.Get("x-api-key"))
}
