package dump

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// FilenameTimeLayout is the UTC, microsecond precision time layout of dump filenames.
const FilenameTimeLayout = "2006-01-02T15:04:05.000000"

const tmpSuffix = ".tmp"

var (
	ErrNotADump  = errors.New("not a dump filename")
	ErrMalformed = errors.New("malformed dump filename")
)

var (
	filenameRegex    = regexp.MustCompile(filenamePattern(false))
	tmpFilenameRegex = regexp.MustCompile(filenamePattern(true))
)

func filenamePattern(tmp bool) string {
	const base = `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6})-v(\d+)`
	if tmp {
		return base + `\.tmp$`
	}
	return base + `$`
}

// FileStats describes a single dump on disk. The filename is its only serialization.
type FileStats struct {
	UpdateTime    time.Time
	FullPath      string
	FormatVersion uint64
}

// Kind classifies a file found in a dump directory.
type Kind int

const (
	// KindUnrelated files are never touched.
	KindUnrelated Kind = iota
	KindDump
	// KindTemporary is a dump which was being written, never a valid dump.
	KindTemporary
	// KindMalformed looks like a dump but its time or version does not parse.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindDump:
		return "dump"
	case KindTemporary:
		return "tmp"
	case KindMalformed:
		return "malformed"
	default:
		return "unrelated"
	}
}

// Round rounds t to the precision representable in a dump filename.
func Round(t time.Time) time.Time {
	return t.Round(time.Microsecond).UTC()
}

// Encode returns the filename of a dump. Decode(Encode(t, v)) yields (Round(t), v).
func Encode(updateTime time.Time, formatVersion uint64) string {
	return Round(updateTime).Format(FilenameTimeLayout) + "-v" + strconv.FormatUint(formatVersion, 10)
}

// TmpName returns the name under which a dump is staged while being written.
func TmpName(path string) string {
	return path + tmpSuffix
}

// Decode parses a path (only the base name is matched) into FileStats.
// Names of other shapes yield ErrNotADump, names with an unparsable time or version yield ErrMalformed.
func Decode(path string) (FileStats, error) {
	filename := filepath.Base(path)

	match := filenameRegex.FindStringSubmatch(filename)
	if match == nil {
		return FileStats{}, ErrNotADump
	}

	updateTime, err := time.ParseInLocation(FilenameTimeLayout, match[1], time.UTC)
	if err != nil {
		return FileStats{}, fmt.Errorf("%w %q: %w", ErrMalformed, filename, err)
	}
	version, err := strconv.ParseUint(match[2], 10, 64)
	if err != nil {
		return FileStats{}, fmt.Errorf("%w %q: %w", ErrMalformed, filename, err)
	}

	return FileStats{UpdateTime: Round(updateTime), FullPath: path, FormatVersion: version}, nil
}

// IsTemporary reports whether path names an in-progress dump.
func IsTemporary(path string) bool {
	return tmpFilenameRegex.MatchString(filepath.Base(path))
}

func Classify(path string) Kind {
	if IsTemporary(path) {
		return KindTemporary
	}
	switch _, err := Decode(path); {
	case err == nil:
		return KindDump
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	default:
		return KindUnrelated
	}
}
