package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PROXY_JWT_SECRET", "shh")
	t.Setenv("AUTH_TOKEN", "tok")
	t.Setenv("PORT", "9100")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "shh", cfg.ProxyJWTSecret)
	assert.Equal(t, "tok", cfg.AuthToken)
	assert.Equal(t, 9100, cfg.Port)
}

func TestLoadRequiresProxySecret(t *testing.T) {
	t.Setenv("PROXY_JWT_SECRET", "")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoadMergesProjectFile(t *testing.T) {
	t.Setenv("PROXY_JWT_SECRET", "shh")
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".sandbox-gateway"), 0o755))
	content := []byte(`{
  // project override
  "defaultModel": "anthropic/claude-opus-4",
  "proxyMountPath": "/gw-proxy"
}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".sandbox-gateway", "config.jsonc"), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-opus-4", cfg.DefaultModel)
	assert.Equal(t, "/gw-proxy", cfg.ProxyMountPath)
}

func TestStripJSONComments(t *testing.T) {
	in := []byte("{\n  \"a\": 1, // trailing\n  /* block */ \"b\": 2\n}")
	out := stripJSONComments(in)
	assert.Contains(t, string(out), "\"a\": 1,")
	assert.NotContains(t, string(out), "trailing")
	assert.NotContains(t, string(out), "block")
}
