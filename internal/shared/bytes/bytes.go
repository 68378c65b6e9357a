package bytes

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Fingerprint identifies dump payload contents. Equal fingerprints mean the
// payload did not change since the previous dump.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

func Hash(data []byte) Fingerprint {
	return Fingerprint(xxh3.Hash(data))
}

// HashFile streams the file at path through xxh3.
func HashFile(path string) (Fingerprint, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	h := xxh3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, n, fmt.Errorf("hash %s: %w", path, err)
	}
	return Fingerprint(h.Sum64()), n, nil
}

func FmtMem(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%dTB %dGB", bytes/TB, bytes%TB/GB)
	case bytes >= GB:
		return fmt.Sprintf("%dGB %dMB", bytes/GB, bytes%GB/MB)
	case bytes >= MB:
		return fmt.Sprintf("%dMB %dKB", bytes/MB, bytes%MB/KB)
	case bytes >= KB:
		return fmt.Sprintf("%dKB %dB", bytes/KB, bytes%KB)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
