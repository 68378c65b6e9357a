package bytes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHash verifies that equal payloads share a fingerprint and different ones do not.
func TestHash(t *testing.T) {
	a := make([]byte, 4096)
	for i := range a {
		a[i] = byte(i % 251)
	}
	b := append([]byte(nil), a...)

	require.Equal(t, Hash(a), Hash(b))

	b[2048] ^= 0xff
	require.NotEqual(t, Hash(a), Hash(b))
	require.NotEqual(t, Hash([]byte("short")), Hash([]byte("much longer data")))
}

// TestHashFile verifies that streaming a file gives the in-memory fingerprint.
func TestHashFile(t *testing.T) {
	payload := []byte("cache contents, v1")
	path := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	fp, n, err := HashFile(path)
	require.NoError(t, err)
	require.Equal(t, Hash(payload), fp)
	require.Equal(t, int64(len(payload)), n)
	require.Len(t, fp.String(), 16)

	_, _, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFmtMem_FormatsCorrectly verifies memory formatting for different sizes.
func TestFmtMem_FormatsCorrectly(t *testing.T) {
	tests := []struct {
		name     string
		bytes    uint64
		expected string
	}{
		{"bytes", 512, "512B"},
		{"kilobytes", 5 * 1024, "5KB 0B"},
		{"megabytes", 10 * 1024 * 1024, "10MB 0KB"},
		{"gigabytes", 2 * 1024 * 1024 * 1024, "2GB 0MB"},
		{"mixed KB", 1536, "1KB 512B"},
		{"mixed GB", 2*1024*1024*1024 + 100*1024*1024, "2GB 100MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, FmtMem(tt.bytes))
		})
	}
}
