package configset

import (
	"testing"
	"time"

	"github.com/Borislavv/go-ash-dump/config"
	"github.com/stretchr/testify/require"
)

const snapshot = `{
	"USERVER_CACHES": {
		"users-cache": {
			"update-interval-ms": 5000,
			"update-jitter-ms": 1000,
			"full-update-interval-ms": 60000,
			"additional-cleanup-interval-ms": 2000
		},
		"only-full.cache": {
			"full-update-interval-ms": 30000
		},
		"jittery": {
			"update-interval-ms": 100,
			"update-jitter-ms": 500
		}
	},
	"USERVER_LRU_CACHES": {
		"sessions": {"size": 1000, "lifetime-ms": 60000, "background-update": true},
		"tokens": {"size": 10}
	},
	"UNRELATED": 42
}`

var names = Names{Config: "USERVER_CACHES", LruConfig: "USERVER_LRU_CACHES"}

// TestSet_GetConfig verifies the parsing of update interval overrides.
func TestSet_GetConfig(t *testing.T) {
	s, err := New(names, []byte(snapshot))
	require.NoError(t, err)
	require.True(t, s.IsConfigEnabled())

	iv, ok := s.GetConfig("users-cache")
	require.True(t, ok)
	require.Equal(t, config.UpdateIntervals{
		UpdateInterval:     5 * time.Second,
		UpdateJitter:       time.Second,
		FullUpdateInterval: time.Minute,
		CleanupInterval:    2 * time.Second,
	}, iv)

	_, ok = s.GetConfig("unknown")
	require.False(t, ok)
}

// TestSet_ResolvesIntervals verifies that zero intervals are resolved against each other.
func TestSet_ResolvesIntervals(t *testing.T) {
	s, err := New(names, []byte(snapshot))
	require.NoError(t, err)

	iv, ok := s.GetConfig("only-full.cache")
	require.True(t, ok)
	require.Equal(t, 30*time.Second, iv.UpdateInterval)
	require.Equal(t, 30*time.Second, iv.FullUpdateInterval)
	require.Equal(t, config.DefaultCleanupInterval, iv.CleanupInterval)
	require.Zero(t, iv.UpdateJitter)

	iv, ok = s.GetConfig("jittery")
	require.True(t, ok)
	require.Equal(t, 10*time.Millisecond, iv.UpdateJitter, "jitter above the interval is reset to interval/10")
}

// TestSet_GetLruConfig verifies the parsing of LRU overrides.
func TestSet_GetLruConfig(t *testing.T) {
	s, err := New(names, []byte(snapshot))
	require.NoError(t, err)
	require.True(t, s.IsLruConfigEnabled())

	lru, ok := s.GetLruConfig("sessions")
	require.True(t, ok)
	require.Equal(t, config.LruCfg{Size: 1000, Lifetime: time.Minute, BackgroundUpdate: true}, lru)

	lru, ok = s.GetLruConfig("tokens")
	require.True(t, ok)
	require.Equal(t, config.LruCfg{Size: 10}, lru)
}

// TestSet_DisabledNames verifies that empty names disable lookups.
func TestSet_DisabledNames(t *testing.T) {
	s, err := New(Names{}, []byte(snapshot))
	require.NoError(t, err)
	require.False(t, s.IsConfigEnabled())
	require.False(t, s.IsLruConfigEnabled())

	_, ok := s.GetConfig("users-cache")
	require.False(t, ok)
	_, ok = s.GetLruConfig("sessions")
	require.False(t, ok)
}

// TestSet_EmptySnapshot yields no overrides.
func TestSet_EmptySnapshot(t *testing.T) {
	s, err := New(names, nil)
	require.NoError(t, err)

	_, ok := s.GetConfig("users-cache")
	require.False(t, ok)
}

// TestSet_InvalidDocuments verifies that broken overrides are rejected as a whole.
func TestSet_InvalidDocuments(t *testing.T) {
	tests := map[string]struct {
		snapshot string
		target   error
	}{
		"not a json":        {snapshot: `{"USERVER_CACHES":`, target: ErrInvalidDocument},
		"missing document":  {snapshot: `{"USERVER_LRU_CACHES": {}}`, target: ErrInvalidDocument},
		"document is array": {snapshot: `{"USERVER_CACHES": [], "USERVER_LRU_CACHES": {}}`, target: ErrInvalidDocument},
		"no intervals": {
			snapshot: `{"USERVER_CACHES": {"c": {"update-jitter-ms": 1}}, "USERVER_LRU_CACHES": {}}`,
			target:   config.ErrInvalidConfig,
		},
		"negative interval": {
			snapshot: `{"USERVER_CACHES": {"c": {"update-interval-ms": -1}}, "USERVER_LRU_CACHES": {}}`,
			target:   ErrInvalidDocument,
		},
		"string interval": {
			snapshot: `{"USERVER_CACHES": {"c": {"update-interval-ms": "1s"}}, "USERVER_LRU_CACHES": {}}`,
			target:   ErrInvalidDocument,
		},
		"zero lru size": {
			snapshot: `{"USERVER_CACHES": {}, "USERVER_LRU_CACHES": {"c": {"size": 0}}}`,
			target:   config.ErrInvalidConfig,
		},
		"missing lru size": {
			snapshot: `{"USERVER_CACHES": {}, "USERVER_LRU_CACHES": {"c": {}}}`,
			target:   ErrInvalidDocument,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(names, []byte(test.snapshot))
			require.ErrorIs(t, err, test.target)
		})
	}
}
