package config

import "time"

// DefaultCleanupInterval is used when additional-cleanup-interval is not configured.
const DefaultCleanupInterval = 10 * time.Second

// UpdateIntervals is the part of the update policy which may be overridden at runtime.
type UpdateIntervals struct {
	UpdateInterval     time.Duration
	UpdateJitter       time.Duration
	FullUpdateInterval time.Duration
	CleanupInterval    time.Duration
}

func DefaultJitter(interval time.Duration) time.Duration {
	return interval / 10
}

// NewUpdateIntervals resolves a dynamically delivered set of intervals.
// A zero update or full update interval is replaced by the other one,
// at least one of them must be set.
func NewUpdateIntervals(cacheName string, update, jitter, full, cleanup time.Duration) (UpdateIntervals, error) {
	if update < 0 || jitter < 0 || full < 0 || cleanup < 0 {
		return UpdateIntervals{}, invalidf(cacheName, "update intervals must not be negative")
	}

	switch {
	case update == 0 && full == 0:
		return UpdateIntervals{}, invalidf(cacheName, "update interval is not set")
	case full == 0:
		full = update
	case update == 0:
		update = full
	}

	if cleanup == 0 {
		cleanup = DefaultCleanupInterval
	}

	iv := UpdateIntervals{
		UpdateInterval:     update,
		UpdateJitter:       jitter,
		FullUpdateInterval: full,
		CleanupInterval:    cleanup,
	}
	iv.clampJitter()
	return iv, nil
}

// clampJitter silently resets a jitter exceeding the interval instead of failing.
func (iv *UpdateIntervals) clampJitter() {
	if iv.UpdateJitter > iv.UpdateInterval {
		iv.UpdateJitter = DefaultJitter(iv.UpdateInterval)
	}
}
