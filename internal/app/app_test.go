package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tvhook/internal/config"
	"tvhook/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		App:      config.AppConfig{LogLevel: "info", HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "tvhook.db"), AuditPath: filepath.Join(dir, "audit.db")},
		Grouping: config.GroupingConfig{LookbackHours: 168, DedupeWindowSeconds: 5, SizeTolerance: 1e-4},
		Webhook:  config.WebhookConfig{Brokers: []string{"blofin"}, MaxBodyBytes: 1024},
		Symbols:  config.SymbolsConfig{Path: filepath.Join(dir, "missing.yaml")},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestBuildAndRun(t *testing.T) {
	a, err := NewApp(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, a.Summary)
	assert.Equal(t, "168h0m0s", a.Summary.Lookback)
	assert.NotEmpty(t, a.Summary.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
	assert.NoError(t, a.Close(), "second close is a no-op")
}

func TestBuildFailureClosesOpenedResources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.AuditPath = ""
	b := NewAppBuilder(cfg, WithStoreFactory(func(path string) (store.Store, error) {
		return openGormStore(path)
	}))
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open audit log")
}

func TestStoreFactoryError(t *testing.T) {
	boom := errors.New("boom")
	b := NewAppBuilder(testConfig(t), WithStoreFactory(func(string) (store.Store, error) { return nil, boom }))
	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, boom)
}
