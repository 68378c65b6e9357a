package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	keyUpdateInterval      = "update-interval"
	keyUpdateJitter        = "update-jitter"
	keyFullUpdateInterval  = "full-update-interval"
	keyCleanupInterval     = "additional-cleanup-interval"
	keyFirstUpdateFailOk   = "first-update-fail-ok"
	keyUpdateTypes         = "update-types"
	keyForcePeriodicUpdate = "testsuite-force-periodic-update"
	keyConfigSettings      = "config-settings"
	keyDump                = "dump"
)

// CacheCfg is the raw static configuration of a periodically updated cache.
// It is validated into an UpdatePolicy by NewUpdatePolicy.
type CacheCfg struct {
	// UpdateInterval is the period of incremental updates (or of all updates
	// unless update-types is full-and-incremental). Example: "1m".
	UpdateInterval *time.Duration `yaml:"update-interval"`

	// UpdateJitter randomizes update moments. Defaults to UpdateInterval / 10.
	UpdateJitter *time.Duration `yaml:"update-jitter"`

	// FullUpdateInterval is the period of full updates.
	// Must only be used with full-and-incremental caches.
	FullUpdateInterval *time.Duration `yaml:"full-update-interval"`

	// CleanupInterval is the period of the additional maintenance (dump cleanup) cycle.
	CleanupInterval *time.Duration `yaml:"additional-cleanup-interval"`

	FirstUpdateFailOk bool `yaml:"first-update-fail-ok"`

	// UpdateTypes is one of "full-and-incremental", "only-full", "only-incremental".
	// When empty it is inferred from the configured intervals.
	UpdateTypes *string `yaml:"update-types"`

	// ForcePeriodicUpdate overrides periodic updates in test environments.
	ForcePeriodicUpdate *bool `yaml:"testsuite-force-periodic-update"`

	// ConfigSettings enables live interval overrides from the config registry.
	ConfigSettings *bool `yaml:"config-settings"`

	// Dump configures dumps. If the section is absent dumps are not used at all.
	Dump *DumpCfg `yaml:"dump"`

	present keySet
}

func (cfg *CacheCfg) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: cache config must be a mapping", value.Line)
	}

	type plain CacheCfg
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*cfg = CacheCfg(p)
	cfg.present = mappingKeys(value)

	return nil
}

func (cfg *CacheCfg) AdjustConfig() {
	if cfg.CleanupInterval == nil {
		d := DefaultCleanupInterval
		cfg.CleanupInterval = &d
	}
	if cfg.ConfigSettings == nil {
		enabled := true
		cfg.ConfigSettings = &enabled
	}
	if cfg.Dump != nil {
		cfg.Dump.AdjustConfig()
	}
}

// Has reports whether key was present in the source document (even if null).
// For configs built in code it falls back to non-nil fields.
func (cfg *CacheCfg) Has(key string) bool {
	if cfg == nil {
		return false
	}
	if cfg.present != nil {
		_, ok := cfg.present[key]
		return ok
	}

	switch key {
	case keyUpdateInterval:
		return cfg.UpdateInterval != nil
	case keyUpdateJitter:
		return cfg.UpdateJitter != nil
	case keyFullUpdateInterval:
		return cfg.FullUpdateInterval != nil
	case keyCleanupInterval:
		return cfg.CleanupInterval != nil
	case keyUpdateTypes:
		return cfg.UpdateTypes != nil
	case keyForcePeriodicUpdate:
		return cfg.ForcePeriodicUpdate != nil
	case keyConfigSettings:
		return cfg.ConfigSettings != nil
	case keyDump:
		return cfg.Dump != nil
	}
	return false
}

func durationOr(d *time.Duration, def time.Duration) time.Duration {
	if d == nil {
		return def
	}
	return *d
}
