package ashdump

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-ash-dump/config"
	"github.com/Borislavv/go-ash-dump/internal/configset"
	"github.com/Borislavv/go-ash-dump/internal/dump"
	"github.com/Borislavv/go-ash-dump/internal/shared/bytes"
	"github.com/benbjohnson/clock"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var (
	// ErrLocked is returned when the dump directory is claimed by another process.
	ErrLocked = errors.New("dump directory is locked by another process")
	// ErrNoDump is returned by LoadLatest when no usable dump exists.
	ErrNoDump = errors.New("no usable dump")
	ErrClosed = errors.New("persister is closed")
)

type (
	DumpStats   = dump.FileStats
	Metrics     = dump.Metrics
	ConfigSet   = configset.Set
	ConfigNames = configset.Names
)

func NewConfigSet(names ConfigNames, snapshot []byte) (*ConfigSet, error) {
	return configset.New(names, snapshot)
}

type Option func(*Persister)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Persister) {
		p.clock = c
	}
}

// Persister owns the dumps of a single cache: it writes payloads into
// dump files, loads the latest one back and applies retention.
// A process claims the dump directory through a "<dir>.lock" file.
type Persister struct {
	name    string
	clock   clock.Clock
	logger  zerolog.Logger
	manager *dump.Manager
	policy  atomic.Pointer[config.UpdatePolicy]

	// mu serializes writers with cleanup and guards the fields below.
	mu     sync.Mutex
	lock   *flock.Flock
	last   fingerprinted
	closed bool
}

// fingerprinted remembers the payload fingerprint of the last dump written or checked.
type fingerprinted struct {
	updateTime  time.Time
	fingerprint bytes.Fingerprint
}

func New(name string, cfg *config.CacheCfg, dumpRoot string, logger zerolog.Logger, opts ...Option) (*Persister, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: cache %q: config is empty", config.ErrInvalidConfig, name)
	}

	policy, err := config.NewUpdatePolicy(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	retention, err := cfg.Dump.Retention(dumpRoot, name)
	if err != nil {
		return nil, err
	}

	p := &Persister{
		name:   name,
		clock:  clock.New(),
		logger: logger.With().Str("cache", name).Str("component", "persister").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.policy.Store(&policy)

	if p.lock, err = claim(retention); err != nil {
		return nil, err
	}
	p.manager = dump.New(name, retention, logger, dump.WithClock(p.clock))

	p.logger.Info().
		Str("dir", retention.Directory).
		Uint64("format_version", retention.FormatVersion).
		Uint64("max_count", retention.MaxCount).
		Msg("persister started")

	return p, nil
}

func claim(r config.DumpRetention) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(r.Directory), r.DirPerm()); err != nil {
		return nil, fmt.Errorf("create dump root: %w", err)
	}

	lock := flock.New(filepath.Clean(r.Directory) + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("acquire lock %s: %w", lock.Path(), err)
	}
	if !ok {
		_ = lock.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, r.Directory)
	}
	return lock, nil
}

func (p *Persister) Name() string {
	return p.name
}

func (p *Persister) Policy() config.UpdatePolicy {
	return *p.policy.Load()
}

func (p *Persister) Retention() config.DumpRetention {
	return p.manager.Config()
}

func (p *Persister) Manager() *dump.Manager {
	return p.manager
}

func (p *Persister) Metrics() Metrics {
	return p.manager.Metrics()
}

// ApplyConfigSet merges the live intervals of this cache into the policy.
// It reports whether the policy changed.
func (p *Persister) ApplyConfigSet(set *ConfigSet) bool {
	if set == nil || !set.IsConfigEnabled() {
		return false
	}
	intervals, ok := set.GetConfig(p.name)
	if !ok {
		return false
	}

	current := p.policy.Load()
	merged := current.MergeWith(intervals)
	if merged == *current {
		return false
	}
	p.policy.Store(&merged)

	p.logger.Info().
		Dur("update_interval", merged.UpdateInterval).
		Dur("update_jitter", merged.UpdateJitter).
		Dur("full_update_interval", merged.FullUpdateInterval).
		Dur("cleanup_interval", merged.CleanupInterval).
		Msg("update intervals overridden")
	return true
}

// SetRetention swaps the retention rules. Moving to another directory
// claims it first and releases the previous one.
func (p *Persister) SetRetention(r config.DumpRetention) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if filepath.Clean(r.Directory) != filepath.Clean(p.manager.Config().Directory) {
		lock, err := claim(r)
		if err != nil {
			return err
		}
		_ = p.lock.Close()
		p.lock = lock
		p.last = fingerprinted{}
	}
	p.manager.SetConfig(r)
	return nil
}

// Store persists payload as the dump of the cache state at updateTime.
// When the latest dump holds the same payload it is renamed instead of rewritten.
func (p *Persister) Store(updateTime time.Time, payload []byte) (DumpStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return DumpStats{}, ErrClosed
	}

	fingerprint := bytes.Hash(payload)
	updateTime = dump.Round(updateTime)

	if latest, ok := p.manager.GetLatestDump(); ok && latest.UpdateTime.Before(updateTime) {
		if p.fingerprintOf(latest) == fingerprint && p.manager.BumpDumpTime(latest.UpdateTime, updateTime) {
			p.last = fingerprinted{updateTime: updateTime, fingerprint: fingerprint}
			latest.UpdateTime = updateTime
			latest.FullPath = filepath.Join(filepath.Dir(latest.FullPath), dump.Encode(updateTime, latest.FormatVersion))
			return latest, nil
		}
	}

	stats, err := p.manager.RegisterNewDump(updateTime)
	if err != nil {
		return DumpStats{}, err
	}

	start := p.clock.Now()
	if err = writeFile(stats.FullPath, payload, p.manager.Config().FilePerm()); err != nil {
		p.logger.Error().Err(err).Str("path", stats.FullPath).Msg("failed to write dump")
		return DumpStats{}, err
	}
	p.last = fingerprinted{updateTime: updateTime, fingerprint: fingerprint}

	p.logger.Info().
		Str("path", stats.FullPath).
		Str("size", bytes.FmtMem(uint64(len(payload)))).
		Str("fingerprint", fingerprint.String()).
		Dur("elapsed", p.clock.Since(start)).
		Msg("dump written")

	return stats, nil
}

// fingerprintOf returns the payload fingerprint of a stored dump, zero if it cannot be read.
func (p *Persister) fingerprintOf(stats DumpStats) bytes.Fingerprint {
	if p.last.updateTime.Equal(stats.UpdateTime) {
		return p.last.fingerprint
	}
	fingerprint, _, err := bytes.HashFile(stats.FullPath)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", stats.FullPath).Msg("failed to fingerprint latest dump")
		return 0
	}
	p.last = fingerprinted{updateTime: stats.UpdateTime, fingerprint: fingerprint}
	return fingerprint
}

// writeFile writes data through a temporary file so that a crash never leaves a partial dump.
func writeFile(path string, data []byte, perm os.FileMode) (err error) {
	tmp := dump.TmpName(path)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("create tmp dump: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("write tmp dump: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync tmp dump: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close tmp dump: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tmp dump: %w", err)
	}
	return nil
}

// LoadLatest reads the newest usable dump.
func (p *Persister) LoadLatest() (DumpStats, []byte, error) {
	latest, ok := p.manager.GetLatestDump()
	if !ok {
		return DumpStats{}, nil, ErrNoDump
	}

	data, err := os.ReadFile(latest.FullPath)
	if err != nil {
		return DumpStats{}, nil, fmt.Errorf("read dump %s: %w", latest.FullPath, err)
	}

	p.logger.Info().
		Str("path", latest.FullPath).
		Str("size", bytes.FmtMem(uint64(len(data)))).
		Time("update_time", latest.UpdateTime).
		Msg("dump loaded")

	return latest, data, nil
}

// Cleanup applies retention. It never runs concurrently with Store.
func (p *Persister) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.manager.Cleanup()
}

// Close releases the directory lock.
func (p *Persister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.lock.Close()
}
