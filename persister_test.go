package ashdump

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-dump/config"
	"github.com/Borislavv/go-ash-dump/internal/dump"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const cacheYaml = `
update-interval: 1s
full-update-interval: 1m
dump:
  enable: true
  format-version: 5
  first-update-mode: skip
  max-age: null
  max-count: 2
`

func baseTime() time.Time {
	return time.Date(2015, 3, 22, 9, 0, 0, 0, time.UTC)
}

func newTestPersister(t *testing.T, root string) (*Persister, *clock.Mock) {
	t.Helper()

	cfg, err := config.ParseCache([]byte(cacheYaml))
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(baseTime())

	p, err := New("users", cfg, root, zerolog.New(zerolog.NewTestWriter(t)), WithClock(mock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, mock
}

func dumpNames(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// TestPersister_StoreAndLoad verifies that a stored payload is loaded back.
func TestPersister_StoreAndLoad(t *testing.T) {
	p, _ := newTestPersister(t, t.TempDir())

	_, _, err := p.LoadLatest()
	require.ErrorIs(t, err, ErrNoDump)

	stats, err := p.Store(baseTime(), []byte("payload-1"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), stats.FormatVersion)
	require.Equal(t, "2015-03-22T09:00:00.000000-v5", filepath.Base(stats.FullPath))

	latest, data, err := p.LoadLatest()
	require.NoError(t, err)
	require.Equal(t, stats, latest)
	require.Equal(t, []byte("payload-1"), data)

	info, err := os.Stat(stats.FullPath)
	require.NoError(t, err)
	require.Zero(t, info.Mode().Perm()&0o007)
	require.Equal(t, []string{"2015-03-22T09:00:00.000000-v5"}, dumpNames(t, p.Retention().Directory))
}

// TestPersister_StoreBumpsUnchangedPayload verifies that identical payloads are renamed, not rewritten.
func TestPersister_StoreBumpsUnchangedPayload(t *testing.T) {
	p, _ := newTestPersister(t, t.TempDir())

	_, err := p.Store(baseTime(), []byte("same"))
	require.NoError(t, err)

	next := baseTime().Add(time.Minute)
	stats, err := p.Store(next, []byte("same"))
	require.NoError(t, err)
	require.Equal(t, next, stats.UpdateTime)
	require.Equal(t, "2015-03-22T09:01:00.000000-v5", filepath.Base(stats.FullPath))

	require.Equal(t, []string{"2015-03-22T09:01:00.000000-v5"}, dumpNames(t, p.Retention().Directory))
	require.Equal(t, int64(1), p.Metrics().Bumped)
	require.Equal(t, int64(1), p.Metrics().Registered)
}

// TestPersister_StoreRewritesChangedPayload verifies that a changed payload produces a new dump.
func TestPersister_StoreRewritesChangedPayload(t *testing.T) {
	p, _ := newTestPersister(t, t.TempDir())

	_, err := p.Store(baseTime(), []byte("first"))
	require.NoError(t, err)
	_, err = p.Store(baseTime().Add(time.Minute), []byte("second"))
	require.NoError(t, err)
	_, err = p.Store(baseTime().Add(2*time.Minute), []byte("third"))
	require.NoError(t, err)

	_, data, err := p.LoadLatest()
	require.NoError(t, err)
	require.Equal(t, []byte("third"), data)
	require.Len(t, dumpNames(t, p.Retention().Directory), 3)

	p.Cleanup()
	require.Equal(t, []string{
		"2015-03-22T09:01:00.000000-v5",
		"2015-03-22T09:02:00.000000-v5",
	}, dumpNames(t, p.Retention().Directory))
}

// TestPersister_StoreSameTime verifies that an existing dump is never overwritten.
func TestPersister_StoreSameTime(t *testing.T) {
	p, _ := newTestPersister(t, t.TempDir())

	_, err := p.Store(baseTime(), []byte("first"))
	require.NoError(t, err)
	_, err = p.Store(baseTime(), []byte("second"))
	require.ErrorIs(t, err, dump.ErrDumpExists)

	_, data, err := p.LoadLatest()
	require.NoError(t, err)
	require.Equal(t, []byte("first"), data)
}

// TestPersister_Lock verifies that a dump directory is claimed by a single persister.
func TestPersister_Lock(t *testing.T) {
	root := t.TempDir()
	p, _ := newTestPersister(t, root)

	cfg, err := config.ParseCache([]byte(cacheYaml))
	require.NoError(t, err)

	_, err = New("users", cfg, root, zerolog.Nop())
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	other, err := New("users", cfg, root, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, other.Close())

	_, err = p.Store(baseTime(), []byte("late"))
	require.ErrorIs(t, err, ErrClosed)
}

// TestPersister_SetRetention verifies that moving to another directory moves the lock.
func TestPersister_SetRetention(t *testing.T) {
	root := t.TempDir()
	p, _ := newTestPersister(t, root)

	r := p.Retention()
	r.Directory = filepath.Join(root, "moved")
	r.FormatVersion = 6
	require.NoError(t, p.SetRetention(r))

	stats, err := p.Store(baseTime(), []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "moved", "2015-03-22T09:00:00.000000-v6"), stats.FullPath)

	cfg, err := config.ParseCache([]byte(cacheYaml))
	require.NoError(t, err)
	released, err := New("users", cfg, root, zerolog.Nop())
	require.NoError(t, err, "the previous directory is released")
	require.NoError(t, released.Close())
}

// TestPersister_ApplyConfigSet verifies that live intervals override the static ones.
func TestPersister_ApplyConfigSet(t *testing.T) {
	p, _ := newTestPersister(t, t.TempDir())

	set, err := NewConfigSet(ConfigNames{Config: "USERVER_CACHES"}, []byte(`{
		"USERVER_CACHES": {
			"users": {"update-interval-ms": 5000, "full-update-interval-ms": 60000},
			"other": {"update-interval-ms": 1}
		}
	}`))
	require.NoError(t, err)

	require.True(t, p.ApplyConfigSet(set))
	require.Equal(t, 5*time.Second, p.Policy().UpdateInterval)
	require.Zero(t, p.Policy().UpdateJitter, "absent live jitter is zero")
	require.Equal(t, time.Minute, p.Policy().FullUpdateInterval)
	require.False(t, p.ApplyConfigSet(set), "same intervals change nothing")

	disabled, err := NewConfigSet(ConfigNames{}, []byte(`{}`))
	require.NoError(t, err)
	require.False(t, p.ApplyConfigSet(disabled))
}

// TestNew_InvalidConfig verifies that invalid configs are rejected before touching the disk.
func TestNew_InvalidConfig(t *testing.T) {
	root := t.TempDir()

	cfg, err := config.ParseCache([]byte("update-interval: 1s\ndump:\n  format-version: 1"))
	require.NoError(t, err)
	_, err = New("users", cfg, root, zerolog.Nop())
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg, err = config.ParseCache([]byte("update-interval: 1s"))
	require.NoError(t, err)
	_, err = New("users", cfg, root, zerolog.Nop())
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	require.Empty(t, dumpNames(t, root))
}
