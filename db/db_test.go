package db

import (
	"fmt"
	"testing"

	"pdavault/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = t.TempDir()
	cfg.Database.SyncWrites = false
	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	return mgr
}

func TestGetMissingKey(t *testing.T) {
	mgr := newTestManager(t)
	v, err := mgr.Get("v1_account_nobody")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEnqueueInvisibleUntilFlush(t *testing.T) {
	mgr := newTestManager(t)
	mgr.EnqueueSet("k1", "v1")

	v, err := mgr.Get("k1")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, mgr.WriteStats().PendingTasks)

	require.NoError(t, mgr.ForceFlush())
	v, err = mgr.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	mgr.EnqueueDel("k1")
	require.NoError(t, mgr.ForceFlush())
	v, err = mgr.Get("k1")
	require.NoError(t, err)
	assert.Nil(t, v)

	st := mgr.WriteStats()
	assert.Equal(t, uint64(1), st.EnqueueSet)
	assert.Equal(t, uint64(1), st.EnqueueDel)
	assert.Equal(t, uint64(2), st.Flushes)
	assert.Zero(t, st.PendingTasks)
}

func TestScanPrefix(t *testing.T) {
	mgr := newTestManager(t)
	for i := 0; i < 5; i++ {
		mgr.EnqueueSet(fmt.Sprintf("v1_account_%02d", i), fmt.Sprintf("a%d", i))
	}
	mgr.EnqueueSet("v1_receipt_x", "r")
	require.NoError(t, mgr.ForceFlush())

	m, err := mgr.Scan("v1_account_")
	require.NoError(t, err)
	assert.Len(t, m, 5)
	assert.Equal(t, "a3", string(m["v1_account_03"]))

	m, err = mgr.ScanWithLimit("v1_account_", 2)
	require.NoError(t, err)
	assert.Len(t, m, 2)
}

func TestReopenKeepsData(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = t.TempDir()

	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	mgr.EnqueueSet("persist", "yes")
	mgr.Close() // Close 会先落盘

	mgr, err = NewManager(cfg)
	require.NoError(t, err)
	defer mgr.Close()
	v, err := mgr.Get("persist")
	require.NoError(t, err)
	assert.Equal(t, "yes", string(v))
}

func TestInMemory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.InMemory = true
	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	defer mgr.Close()

	mgr.EnqueueSet("k", "v")
	require.NoError(t, mgr.ForceFlush())
	v, err := mgr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestClosedManager(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.InMemory = true
	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	mgr.Close()

	_, err = mgr.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	mgr.EnqueueSet("k", "v")
	assert.ErrorIs(t, mgr.ForceFlush(), ErrClosed)
}
