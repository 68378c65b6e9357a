package config

import (
	"github.com/rs/zerolog"
)

// UpdatePolicy is the validated update and dump policy of a cache.
// It is passed by value: a policy never changes once built,
// live overrides produce a new one via MergeWith.
type UpdatePolicy struct {
	UpdateIntervals

	AllowedUpdateTypes      AllowedUpdateTypes
	AllowFirstUpdateFailure bool
	// ForcePeriodicUpdate is a testsuite override, nil when not configured.
	ForcePeriodicUpdate  *bool
	ConfigUpdatesEnabled bool

	FirstUpdateMode       FirstUpdateMode
	ForceFullSecondUpdate bool
}

// NewUpdatePolicy validates cfg of the cache called cacheName.
// Any returned error wraps ErrInvalidConfig and means the cache must not start.
func NewUpdatePolicy(cacheName string, cfg *CacheCfg, logger zerolog.Logger) (UpdatePolicy, error) {
	if cfg == nil {
		return UpdatePolicy{}, invalidf(cacheName, "config is empty")
	}

	update := durationOr(cfg.UpdateInterval, 0)
	full := durationOr(cfg.FullUpdateInterval, 0)
	iv := UpdateIntervals{
		UpdateInterval:     update,
		UpdateJitter:       durationOr(cfg.UpdateJitter, DefaultJitter(update)),
		FullUpdateInterval: full,
		CleanupInterval:    durationOr(cfg.CleanupInterval, DefaultCleanupInterval),
	}
	if iv.UpdateInterval < 0 || iv.UpdateJitter < 0 || iv.FullUpdateInterval < 0 || iv.CleanupInterval < 0 {
		return UpdatePolicy{}, invalidf(cacheName, "update intervals must not be negative")
	}
	if iv.UpdateInterval == 0 && iv.FullUpdateInterval == 0 {
		return UpdatePolicy{}, invalidf(cacheName, "update interval is not set, configure '%s' or '%s'",
			keyUpdateInterval, keyFullUpdateInterval)
	}

	updateTypes, err := parseUpdateTypes(cacheName, cfg)
	if err != nil {
		return UpdatePolicy{}, err
	}

	switch updateTypes {
	case FullAndIncremental:
		if iv.UpdateInterval == 0 || iv.FullUpdateInterval == 0 {
			return UpdatePolicy{}, invalidf(cacheName, "both '%s' and '%s' must be set",
				keyUpdateInterval, keyFullUpdateInterval)
		}
		if iv.UpdateInterval >= iv.FullUpdateInterval {
			logger.Warn().
				Str("cache", cacheName).
				Str(keyUpdateInterval, iv.UpdateInterval.String()).
				Str(keyFullUpdateInterval, iv.FullUpdateInterval.String()).
				Msgf("incremental updates are requested but have lower frequency than full updates "+
					"and will never happen, remove '%s' config field if this is intended", keyFullUpdateInterval)
		}
	case OnlyFull, OnlyIncremental:
		if cfg.Has(keyFullUpdateInterval) {
			return UpdatePolicy{}, invalidf(cacheName, "'%s' config field must only be used with %s updated caches, "+
				"please rename it to '%s'", keyFullUpdateInterval, FullAndIncremental, keyUpdateInterval)
		}
		if iv.UpdateInterval == 0 {
			return UpdatePolicy{}, invalidf(cacheName, "'%s' is not set", keyUpdateInterval)
		}
		iv.FullUpdateInterval = iv.UpdateInterval
	}
	iv.clampJitter()

	policy := UpdatePolicy{
		UpdateIntervals:         iv,
		AllowedUpdateTypes:      updateTypes,
		AllowFirstUpdateFailure: cfg.FirstUpdateFailOk,
		ForcePeriodicUpdate:     cfg.ForcePeriodicUpdate,
		ConfigUpdatesEnabled:    cfg.ConfigSettings == nil || *cfg.ConfigSettings,
		FirstUpdateMode:         FirstUpdateSkip,
	}

	if !cfg.Has(keyDump) {
		return policy, nil
	}

	dump := cfg.Dump
	if dump != nil && dump.FirstUpdateMode != nil {
		policy.FirstUpdateMode = *dump.FirstUpdateMode
	}
	if dump != nil && dump.ForceFullSecondUpdate != nil {
		policy.ForceFullSecondUpdate = *dump.ForceFullSecondUpdate
	}

	if !dump.Has(keyFirstUpdateMode) {
		return UpdatePolicy{}, invalidf(cacheName, "if dumps are enabled, then '%s' must be set", keyFirstUpdateMode)
	}
	if policy.FirstUpdateMode != FirstUpdateRequired && !dump.MaxAgeSet() {
		return UpdatePolicy{}, invalidf(cacheName, "if '%s' is not '%s', then '%s' must be set. "+
			"If using severely outdated data is not harmful for this cache, add '%s: null' to the dump config",
			keyFirstUpdateMode, FirstUpdateRequired, keyMaxAge, keyMaxAge)
	}
	if updateTypes == OnlyIncremental && !dump.Has(keyForceFullSecondUpdate) {
		return UpdatePolicy{}, invalidf(cacheName, "if '%s' is '%s', then '%s' must be set",
			keyUpdateTypes, OnlyIncremental, keyForceFullSecondUpdate)
	}

	return policy, nil
}

func parseUpdateTypes(cacheName string, cfg *CacheCfg) (AllowedUpdateTypes, error) {
	if cfg.UpdateTypes == nil {
		if cfg.Has(keyFullUpdateInterval) && cfg.Has(keyUpdateInterval) {
			return FullAndIncremental, nil
		}
		return OnlyFull, nil
	}

	t, err := ParseAllowedUpdateTypes(*cfg.UpdateTypes)
	if err != nil {
		return 0, invalidf(cacheName, "'%s': %v", keyUpdateTypes, err)
	}
	return t, nil
}

// MergeWith returns a copy of the policy with intervals replaced by live overrides.
// The receiver is returned unchanged when config updates are disabled for the cache.
func (p UpdatePolicy) MergeWith(other UpdateIntervals) UpdatePolicy {
	if !p.ConfigUpdatesEnabled {
		return p
	}
	merged := p
	merged.UpdateIntervals = other
	if merged.AllowedUpdateTypes != FullAndIncremental {
		merged.FullUpdateInterval = merged.UpdateInterval
	}
	merged.clampJitter()
	return merged
}
