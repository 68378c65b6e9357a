package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	keyEnable                = "enable"
	keyWorldReadable         = "world-readable"
	keyFormatVersion         = "format-version"
	keyFirstUpdateMode       = "first-update-mode"
	keyMaxAge                = "max-age"
	keyMaxCount              = "max-count"
	keyForceFullSecondUpdate = "force-full-second-update"
)

const defaultMaxDumpCount = 1

// maxAgeNoLimit is the explicit "no limit" spelling of max-age, equal to null.
const maxAgeNoLimit = "no limit"

// DumpCfg is the raw "dump" section of a cache config.
type DumpCfg struct {
	// Enable turns dumping on. A present but disabled section is still validated.
	Enable bool `yaml:"enable"`

	// WorldReadable makes created dump directories and files readable by others.
	WorldReadable bool `yaml:"world-readable"`

	// FormatVersion must be bumped whenever the dump content layout changes,
	// dumps of other versions are never loaded.
	FormatVersion *uint64 `yaml:"format-version"`

	// FirstUpdateMode is one of "required", "best-effort", "skip".
	FirstUpdateMode *FirstUpdateMode `yaml:"first-update-mode"`

	// MaxAge limits the age of dumps which may be loaded and kept.
	// Null or "no limit" disables the limit but still counts as set.
	MaxAge *time.Duration `yaml:"-"`

	// MaxCount is the number of current version dumps kept by cleanup. Default: 1.
	MaxCount *uint64 `yaml:"max-count"`

	ForceFullSecondUpdate *bool `yaml:"force-full-second-update"`

	// Directory overrides <dump-root>/<cache name>.
	Directory string `yaml:"dump-directory"`

	present keySet
}

func (cfg *DumpCfg) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: dump config must be a mapping", value.Line)
	}

	type plain DumpCfg
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*cfg = DumpCfg(p)
	cfg.present = mappingKeys(value)

	if node := mappingValue(value, keyMaxAge); node != nil {
		maxAge, err := parseMaxAge(node)
		if err != nil {
			return err
		}
		cfg.MaxAge = maxAge
	}

	return nil
}

func parseMaxAge(node *yaml.Node) (*time.Duration, error) {
	if node.ShortTag() == "!!null" || node.Value == "" || strings.EqualFold(node.Value, maxAgeNoLimit) {
		return nil, nil
	}
	d, err := time.ParseDuration(node.Value)
	if err != nil {
		return nil, fmt.Errorf("line %d: %s: %w", node.Line, keyMaxAge, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("line %d: %s must be positive, got %s", node.Line, keyMaxAge, d)
	}
	return &d, nil
}

func (cfg *DumpCfg) AdjustConfig() {
	if cfg.MaxCount == nil {
		count := uint64(defaultMaxDumpCount)
		cfg.MaxCount = &count
	}
}

// Has reports whether key was present in the source document (even if null).
func (cfg *DumpCfg) Has(key string) bool {
	if cfg == nil {
		return false
	}
	if cfg.present != nil {
		_, ok := cfg.present[key]
		return ok
	}

	switch key {
	case keyFormatVersion:
		return cfg.FormatVersion != nil
	case keyFirstUpdateMode:
		return cfg.FirstUpdateMode != nil
	case keyMaxAge:
		return cfg.MaxAge != nil
	case keyMaxCount:
		return cfg.MaxCount != nil
	case keyForceFullSecondUpdate:
		return cfg.ForceFullSecondUpdate != nil
	}
	return false
}

// MaxAgeSet reports whether max-age was configured, including an explicit "no limit".
func (cfg *DumpCfg) MaxAgeSet() bool {
	return cfg.Has(keyMaxAge)
}

func (cfg *DumpCfg) Enabled() bool {
	return cfg != nil && cfg.Enable
}

// DumpRetention is an immutable snapshot of the dump files layout and retention rules.
// It is replaced as a whole on reconfiguration.
type DumpRetention struct {
	Directory     string
	FormatVersion uint64
	// MaxAge is nil when the age of dumps is not limited.
	MaxAge        *time.Duration
	MaxCount      uint64
	WorldReadable bool
}

// DirPerm returns the permission bits of created dump directories.
func (r DumpRetention) DirPerm() os.FileMode {
	if r.WorldReadable {
		return 0o755
	}
	return 0o750
}

// FilePerm returns the permission bits of written dump files.
func (r DumpRetention) FilePerm() os.FileMode {
	if r.WorldReadable {
		return 0o644
	}
	return 0o640
}

// Retention builds the retention snapshot for cacheName with dumps placed under root.
func (cfg *DumpCfg) Retention(root, cacheName string) (DumpRetention, error) {
	if cfg == nil {
		return DumpRetention{}, invalidf(cacheName, "dump section is not configured")
	}
	if cfg.FormatVersion == nil {
		return DumpRetention{}, invalidf(cacheName, "'%s' must be set if dumps are configured", keyFormatVersion)
	}

	dir := cfg.Directory
	if dir == "" {
		if err := validateCacheName(cacheName); err != nil {
			return DumpRetention{}, err
		}
		if root == "" {
			return DumpRetention{}, invalidf(cacheName, "dump root directory is not set")
		}
		dir = filepath.Join(root, cacheName)
	}

	maxCount := uint64(defaultMaxDumpCount)
	if cfg.MaxCount != nil {
		maxCount = *cfg.MaxCount
	}

	var maxAge *time.Duration
	if cfg.MaxAge != nil {
		d := *cfg.MaxAge
		maxAge = &d
	}

	return DumpRetention{
		Directory:     dir,
		FormatVersion: *cfg.FormatVersion,
		MaxAge:        maxAge,
		MaxCount:      maxCount,
		WorldReadable: cfg.WorldReadable,
	}, nil
}

func validateCacheName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: cache name cannot be empty", ErrInvalidConfig)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) || strings.Contains(name, "\x00") {
		return invalidf(name, "cache name must not contain path separators or traversal sequences")
	}
	return nil
}
