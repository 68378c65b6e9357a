package dump

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-ash-dump/config"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

var ErrDumpExists = errors.New("dump already exists")

// Manager owns the dump files of a single cache: their naming scheme, placement and retention.
//
// Every method performs blocking filesystem calls. RegisterNewDump, GetLatestDump and
// BumpDumpTime may be called concurrently, Cleanup must not run concurrently with RegisterNewDump.
type Manager struct {
	name     string
	cfg      atomic.Pointer[config.DumpRetention]
	clock    clock.Clock
	logger   zerolog.Logger
	counters *managerCounters
}

type Option func(*Manager)

// WithClock replaces the wall clock used for age computations.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func New(name string, cfg config.DumpRetention, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		name:     name,
		clock:    clock.New(),
		logger:   logger.With().Str("cache", name).Str("component", "dump manager").Logger(),
		counters: newManagerCounters(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.SetConfig(cfg)
	return m
}

func (m *Manager) Name() string {
	return m.name
}

// Config returns the snapshot used by operations started now.
func (m *Manager) Config() config.DumpRetention {
	return *m.cfg.Load()
}

// SetConfig publishes cfg for subsequent operations. Operations in flight keep their snapshot.
func (m *Manager) SetConfig(cfg config.DumpRetention) {
	if cfg.MaxAge != nil {
		maxAge := *cfg.MaxAge
		cfg.MaxAge = &maxAge
	}
	m.cfg.Store(&cfg)
}

func (m *Manager) Metrics() Metrics {
	return m.counters.snapshot()
}

// RegisterNewDump reserves the path of a dump for updateTime and makes sure its directory exists.
// The dump file itself is created by the caller.
func (m *Manager) RegisterNewDump(updateTime time.Time) (FileStats, error) {
	cfg := m.cfg.Load()
	path := dumpPath(updateTime, cfg)

	if _, err := os.Lstat(path); err == nil {
		return FileStats{}, fmt.Errorf("could not dump cache %s to %q: %w", m.name, path, ErrDumpExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return FileStats{}, fmt.Errorf("could not dump cache %s to %q: %w", m.name, path, err)
	}

	if err := os.MkdirAll(cfg.Directory, cfg.DirPerm()); err != nil {
		return FileStats{}, fmt.Errorf("create dump directory for cache %s at %q: %w", m.name, path, err)
	}

	m.counters.registered.Add(1)
	return FileStats{UpdateTime: Round(updateTime), FullPath: path, FormatVersion: cfg.FormatVersion}, nil
}

// GetLatestDump returns the newest dump of the current format version which is not older than max age.
// Any failure is logged and reported as no usable dump.
func (m *Manager) GetLatestDump() (FileStats, bool) {
	cfg := m.cfg.Load()

	latest, found := m.latestDump(cfg)
	if !found {
		m.logger.Info().Str("dir", cfg.Directory).Msg("no usable cache dumps found")
		return FileStats{}, false
	}

	m.logger.Debug().Str("path", latest.FullPath).Msg("a usable cache dump found")
	return latest, true
}

func (m *Manager) latestDump(cfg *config.DumpRetention) (best FileStats, found bool) {
	files, err := m.list(cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.Debug().Str("dir", cfg.Directory).Msg("cache dump directory does not exist")
		} else {
			m.counters.listErrors.Add(1)
			m.logger.Error().Err(err).Str("dir", cfg.Directory).Msg("error while trying to fetch cache dumps")
		}
		return FileStats{}, false
	}

	minTime, limited := m.minAcceptableUpdateTime(cfg)
	for _, f := range files {
		if f.Kind != KindDump {
			continue
		}
		if f.Stats.FormatVersion != cfg.FormatVersion {
			m.logger.Debug().
				Str("path", f.Path).
				Uint64("version", f.Stats.FormatVersion).
				Uint64("current_version", cfg.FormatVersion).
				Msg("ignoring cache dump of another format version")
			continue
		}
		if limited && f.Stats.UpdateTime.Before(minTime) {
			m.logger.Debug().
				Str("path", f.Path).
				Str("max_age", cfg.MaxAge.String()).
				Msg("ignoring cache dump older than the maximum allowed age")
			continue
		}
		if !found || !f.Stats.UpdateTime.Before(best.UpdateTime) {
			best, found = f.Stats, true
		}
	}

	return best, found
}

// BumpDumpTime renames the dump of oldTime to newTime, used when an update produced identical data.
// It returns false if the dump is gone or cannot be renamed, the caller should write a new dump then.
func (m *Manager) BumpDumpTime(oldTime, newTime time.Time) bool {
	if oldTime.After(newTime) {
		m.logger.Error().
			Time("old_update_time", oldTime).
			Time("new_update_time", newTime).
			Msg("refusing to bump cache dump time backwards")
		m.counters.bumpMisses.Add(1)
		return false
	}

	cfg := m.cfg.Load()
	oldPath := dumpPath(oldTime, cfg)
	newPath := dumpPath(newTime, cfg)

	if info, err := os.Stat(oldPath); err != nil || !info.Mode().IsRegular() {
		m.logger.Warn().
			Str("path", oldPath).
			Msg("the previous cache dump has suddenly disappeared, a new cache dump will be created")
		m.counters.bumpMisses.Add(1)
		return false
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		m.logger.Error().
			Err(err).
			Str("path", oldPath).
			Str("new_path", newPath).
			Msg("error while trying to rename cache dump")
		m.counters.bumpMisses.Add(1)
		return false
	}

	m.logger.Info().Str("path", oldPath).Str("new_path", newPath).Msg("renamed cache dump")
	m.counters.bumped.Add(1)
	return true
}

type removalReason int

const (
	reasonTmp removalReason = iota
	reasonOutdated
	reasonExpired
	reasonExcessive
)

type removal struct {
	path   string
	reason removalReason
}

// Cleanup removes leftover tmp files, dumps of older format versions, dumps older than
// max age and all but max count newest current dumps. Dumps of newer format versions
// and unrelated files are never touched. Must not run concurrently with RegisterNewDump.
func (m *Manager) Cleanup() {
	cfg := m.cfg.Load()

	files, err := m.list(cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.Info().Str("dir", cfg.Directory).Msg("cache dump directory does not exist")
		} else {
			m.counters.listErrors.Add(1)
			m.logger.Error().Err(err).Str("dir", cfg.Directory).Msg("error while cleaning up old dumps")
		}
		return
	}

	for _, r := range m.planCleanup(cfg, files) {
		m.remove(r)
	}
}

func (m *Manager) planCleanup(cfg *config.DumpRetention, files []Entry) []removal {
	minTime, limited := m.minAcceptableUpdateTime(cfg)

	var (
		removals []removal
		current  []FileStats
	)
	for _, f := range files {
		switch f.Kind {
		case KindTemporary:
			removals = append(removals, removal{path: f.Path, reason: reasonTmp})
		case KindDump:
			switch {
			case f.Stats.FormatVersion > cfg.FormatVersion:
				m.logger.Debug().
					Str("path", f.Path).
					Uint64("version", f.Stats.FormatVersion).
					Msg("keeping a cache dump of a newer format version")
			case f.Stats.FormatVersion < cfg.FormatVersion:
				removals = append(removals, removal{path: f.Path, reason: reasonOutdated})
			case limited && f.Stats.UpdateTime.Before(minTime):
				removals = append(removals, removal{path: f.Path, reason: reasonExpired})
			default:
				current = append(current, f.Stats)
			}
		}
	}

	slices.SortFunc(current, func(a, b FileStats) int {
		return b.UpdateTime.Compare(a.UpdateTime)
	})
	for i := cfg.MaxCount; i < uint64(len(current)); i++ {
		removals = append(removals, removal{path: current[i].FullPath, reason: reasonExcessive})
	}

	return removals
}

func (m *Manager) remove(r removal) {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.counters.removeErrors.Add(1)
		m.logger.Error().Err(err).Str("path", r.path).Msg("failed to remove a cache dump file")
		return
	}

	ev := m.logger.Info().Str("path", r.path)
	switch r.reason {
	case reasonTmp:
		m.counters.removedTmp.Add(1)
		ev.Msg("removed a leftover tmp file")
	case reasonOutdated:
		m.counters.removedOutdated.Add(1)
		ev.Msg("removed a dump of an outdated format version")
	case reasonExpired:
		m.counters.removedExpired.Add(1)
		ev.Msg("removed an expired dump")
	case reasonExcessive:
		m.counters.removedExcessive.Add(1)
		ev.Msg("removed an excessive dump")
	}
}

// Entry is a regular file of a dump directory together with its classification.
type Entry struct {
	Path  string
	Kind  Kind
	Stats FileStats
}

// List classifies every regular file of the dump directory.
func (m *Manager) List() ([]Entry, error) {
	return m.list(m.cfg.Load())
}

func (m *Manager) list(cfg *config.DumpRetention) ([]Entry, error) {
	entries, err := os.ReadDir(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("read dump directory: %w", err)
	}

	files := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(cfg.Directory, entry.Name())
		if !isRegularFile(path, entry) {
			continue
		}

		if IsTemporary(path) {
			m.logger.Debug().Str("path", path).Msg("a leftover tmp file found")
			files = append(files, Entry{Path: path, Kind: KindTemporary})
			continue
		}

		stats, err := Decode(path)
		switch {
		case err == nil:
			files = append(files, Entry{Path: path, Kind: KindDump, Stats: stats})
		case errors.Is(err, ErrMalformed):
			m.logger.Warn().Err(err).Str("path", path).Msg("a filename looks like a cache dump, but it is not")
			files = append(files, Entry{Path: path, Kind: KindMalformed})
		default:
			m.logger.Warn().Str("path", path).Msg("unrelated file in the cache dump directory")
			files = append(files, Entry{Path: path, Kind: KindUnrelated})
		}
	}

	return files, nil
}

func isRegularFile(path string, entry fs.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (m *Manager) minAcceptableUpdateTime(cfg *config.DumpRetention) (time.Time, bool) {
	if cfg.MaxAge == nil {
		return time.Time{}, false
	}
	return Round(m.clock.Now()).Add(-*cfg.MaxAge), true
}

func dumpPath(updateTime time.Time, cfg *config.DumpRetention) string {
	return filepath.Join(cfg.Directory, Encode(updateTime, cfg.FormatVersion))
}
