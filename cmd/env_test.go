package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sortscan/internal/config"
	"github.com/sells-group/sortscan/internal/sharesync"
)

// Port 1 refuses immediately, so these tests never wait on a dial timeout.
func unreachableStoreConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{DatabaseURL: "postgres://sortscan@127.0.0.1:1/sortscan?connect_timeout=1"},
		Cache: config.CacheConfig{Path: filepath.Join(t.TempDir(), "cache.db")},
		Sync:  config.SyncConfig{MaxAttempts: 1, BackoffMs: 1, BreakerFailures: 3},
	}
}

func TestInitAppStatusDegradesWhenStoreUnreachable(t *testing.T) {
	cfg = unreachableStoreConfig(t)

	env, err := initApp(context.Background(), "status")
	require.NoError(t, err, "status must come up on the local view when the shared store is down")
	defer env.Close()

	assert.Nil(t, env.Remote)
	assert.Equal(t, sharesync.StatusOffline, env.Sync.Status())
}

func TestInitAppStatusWithoutStoreConfigured(t *testing.T) {
	cfg = unreachableStoreConfig(t)
	cfg.Store.DatabaseURL = ""

	env, err := initApp(context.Background(), "status")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Remote)
}

func TestInitAppScanRequiresReachableStore(t *testing.T) {
	cfg = unreachableStoreConfig(t)

	_, err := initApp(context.Background(), "scan")
	assert.Error(t, err)
}
