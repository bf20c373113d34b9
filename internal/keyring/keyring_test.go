package keyring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	m := New(Config{
		TransientCooldown: 5 * time.Minute,
		QuotaCooldown:     1 * time.Hour,
		MaxCooldown:       6 * time.Hour,
	}, zerolog.Nop())

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestAcquireRotation(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterPool("indexer", []string{"key-a", "key-b", "key-c"}, 0)

	// First available key wins, repeatedly.
	for i := 0; i < 3; i++ {
		key, err := m.Acquire("indexer")
		require.NoError(t, err)
		assert.Equal(t, "key-a", key)
	}

	// Cooling the first key moves acquisition to the second.
	m.ReportFailure("indexer", "key-a", FailureTransient)
	key, err := m.Acquire("indexer")
	require.NoError(t, err)
	assert.Equal(t, "key-b", key)

	stats := m.Stats()["indexer"]
	assert.Equal(t, 3, stats.TotalKeys)
	assert.Equal(t, 2, stats.Available)
	assert.Equal(t, 1, stats.Cooling)
	assert.Equal(t, int64(4), stats.UsageTotal)
	assert.Equal(t, int64(1), stats.ErrorTotal)
}

func TestAcquireUnknownService(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Acquire("nonexistent")
	assert.ErrorIs(t, err, ErrNoKeyAvailable)
}

func TestExhaustedPoolReportsRetryAt(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterPool("indexer", []string{"key-a", "key-b"}, 0)

	m.ReportFailure("indexer", "key-a", FailureQuota)     // 1h
	m.ReportFailure("indexer", "key-b", FailureTransient) // 5m

	_, err := m.Acquire("indexer")
	require.ErrorIs(t, err, ErrNoKeyAvailable)

	var noKey *NoKeyError
	require.ErrorAs(t, err, &noKey)
	assert.Equal(t, "indexer", noKey.Service)
	// Earliest retry is the transient key, 5 minutes out.
	assert.Equal(t, 5*time.Minute, noKey.RetryAt.Sub(m.now()))

	assert.Equal(t, []string{"indexer"}, m.Exhausted())
}

func TestCooldownDoublesWhileActive(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterPool("oracle", []string{"key-a"}, 0)

	// Consecutive failures inside the active cooldown double each time:
	// 5m, 10m, 20m, 40m.
	expected := []time.Duration{
		5 * time.Minute,
		10 * time.Minute,
		20 * time.Minute,
		40 * time.Minute,
	}
	for i, want := range expected {
		m.ReportFailure("oracle", "key-a", FailureTransient)
		k := m.pools["oracle"].keys[0]
		assert.Equal(t, want, k.lastCooldown, "failure %d", i+1)
		assert.Equal(t, m.now().Add(want), k.cooldownUntil, "failure %d", i+1)
	}
}

func TestCooldownCapped(t *testing.T) {
	m, _ := newTestManager(t)
	m.cfg.MaxCooldown = 15 * time.Minute
	m.RegisterPool("oracle", []string{"key-a"}, 0)

	for i := 0; i < 5; i++ {
		m.ReportFailure("oracle", "key-a", FailureTransient)
	}
	k := m.pools["oracle"].keys[0]
	assert.Equal(t, 15*time.Minute, k.lastCooldown)
}

func TestCooldownResetsAfterExpiry(t *testing.T) {
	m, now := newTestManager(t)
	m.RegisterPool("oracle", []string{"key-a"}, 0)

	m.ReportFailure("oracle", "key-a", FailureTransient)
	m.ReportFailure("oracle", "key-a", FailureTransient)
	k := m.pools["oracle"].keys[0]
	assert.Equal(t, 10*time.Minute, k.lastCooldown)

	// Once the cooldown has expired, a new failure restarts at the base.
	*now = now.Add(11 * time.Minute)
	m.ReportFailure("oracle", "key-a", FailureTransient)
	assert.Equal(t, 5*time.Minute, k.lastCooldown)
}

func TestQuotaFailureUsesLongCooldown(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterPool("indexer", []string{"key-a"}, 0)

	m.ReportFailure("indexer", "key-a", FailureQuota)
	k := m.pools["indexer"].keys[0]
	assert.Equal(t, 1*time.Hour, k.lastCooldown)
}

func TestReportSuccessClearsCooldown(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterPool("indexer", []string{"key-a"}, 0)

	m.ReportFailure("indexer", "key-a", FailureTransient)
	_, err := m.Acquire("indexer")
	require.Error(t, err)

	m.ReportSuccess("indexer", "key-a")
	key, err := m.Acquire("indexer")
	require.NoError(t, err)
	assert.Equal(t, "key-a", key)
}

func TestDailyBudget(t *testing.T) {
	m, now := newTestManager(t)
	m.RegisterPool("indexer", []string{"key-a"}, 2)

	for i := 0; i < 2; i++ {
		_, err := m.Acquire("indexer")
		require.NoError(t, err)
	}

	_, err := m.Acquire("indexer")
	assert.ErrorIs(t, err, ErrNoKeyAvailable)

	// Budget refills when the day rolls over.
	*now = now.Add(24 * time.Hour)
	_, err = m.Acquire("indexer")
	assert.NoError(t, err)
}

func TestSnapshotHashesKeys(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterPool("indexer", []string{"super-secret-key"}, 0)

	_, err := m.Acquire("indexer")
	require.NoError(t, err)

	snaps := m.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "indexer", snaps[0].Service)
	assert.NotContains(t, snaps[0].KeyHash, "secret")
	assert.Len(t, snaps[0].KeyHash, 16)
	assert.Equal(t, int64(1), snaps[0].UsageCount)
}

func TestEmptyKeysDropped(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterPool("indexer", []string{"", "key-a", ""}, 0)

	key, err := m.Acquire("indexer")
	require.NoError(t, err)
	assert.Equal(t, "key-a", key)
	assert.Equal(t, 1, m.Stats()["indexer"].TotalKeys)
}
