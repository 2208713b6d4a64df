package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
app:
  log_level: DEBUG
database:
  path: /tmp/a.db
  audit_path: /tmp/b.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.True(t, cfg.App.LogCompress)
	assert.Equal(t, 168, cfg.Grouping.LookbackHours)
	assert.Equal(t, 5, cfg.Grouping.DedupeWindowSeconds)
	assert.Equal(t, 1e-4, cfg.Grouping.SizeTolerance)
	assert.Equal(t, []string{"blofin", "oanda"}, cfg.Webhook.Brokers)
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodyBytes)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "configs/symbols.yaml", cfg.Symbols.Path)
}

func TestExplicitFalseIsKept(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
app:
  log_compress: false
metrics:
  enabled: false
database:
  path: /tmp/a.db
  audit_path: /tmp/b.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.App.LogCompress)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadIncludesAndOwners(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "webhook.yaml", `
webhook:
  brokers: [Blofin]
  owners:
    HookA: alice
  allowed_ips:
    alice: ["10.0.0.1"]
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - webhook.yaml
grouping:
  lookback_hours: "24"
database:
  path: /tmp/a.db
  audit_path: /tmp/b.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"blofin"}, cfg.Webhook.Brokers)
	assert.Equal(t, 24, cfg.Grouping.LookbackHours)

	owner, ok := cfg.Webhook.ResolveOwner("hooka")
	assert.True(t, ok)
	assert.Equal(t, "alice", owner)
	_, ok = cfg.Webhook.ResolveOwner("unknown")
	assert.False(t, ok)

	assert.True(t, cfg.Webhook.BrokerEnabled("BLOFIN"))
	assert.False(t, cfg.Webhook.BrokerEnabled("oanda"))
	assert.True(t, cfg.Webhook.IPAllowed("alice", "10.0.0.1"))
	assert.False(t, cfg.Webhook.IPAllowed("alice", "10.0.0.2"))
	assert.True(t, cfg.Webhook.IPAllowed("bob", "1.2.3.4"))
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  path: /tmp/a.db
  audit_path: /tmp/b.db
`)
	t.Setenv("TVHOOK_APP_HTTP_ADDR", ":7000")
	t.Setenv("TVHOOK_GROUPING_DEDUPE_WINDOW_SECONDS", "9")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.App.HTTPAddr)
	assert.Equal(t, 9, cfg.Grouping.DedupeWindowSeconds)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown broker", "webhook:\n  brokers: [kraken]\n", "unsupported broker"},
		{"bad log level", "app:\n  log_level: loud\n", "app.log_level"},
		{"same db paths", "database:\n  path: /tmp/x.db\n  audit_path: /tmp/x.db\n", "audit_path"},
		{"metrics path", "metrics:\n  path: metrics\n", "metrics.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestResolveOwnerWithoutMap(t *testing.T) {
	var w WebhookConfig
	owner, ok := w.ResolveOwner(" alice ")
	assert.True(t, ok)
	assert.Equal(t, "alice", owner)
	_, ok = w.ResolveOwner("")
	assert.False(t, ok)
}
