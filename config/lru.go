package config

import (
	"fmt"
	"time"
)

// LruCfg is the part of an LRU cache config which may be overridden at runtime.
type LruCfg struct {
	Size     int
	Lifetime time.Duration
	// BackgroundUpdate refreshes entries in background instead of on access.
	BackgroundUpdate bool
}

func NewLruCfg(cacheName string, size int, lifetime time.Duration, backgroundUpdate bool) (LruCfg, error) {
	if size <= 0 {
		return LruCfg{}, invalidf(cacheName, "cache size is non-positive")
	}
	if lifetime < 0 {
		return LruCfg{}, invalidf(cacheName, "lifetime must not be negative")
	}
	return LruCfg{Size: size, Lifetime: lifetime, BackgroundUpdate: backgroundUpdate}, nil
}

// LruStaticCfg is the raw static config of an LRU cache.
type LruStaticCfg struct {
	Size             int           `yaml:"size"`
	Ways             int           `yaml:"ways"`
	Lifetime         time.Duration `yaml:"lifetime"`
	BackgroundUpdate bool          `yaml:"background-update"`
}

type LruPolicy struct {
	LruCfg
	Ways int
}

func NewLruPolicy(cacheName string, cfg *LruStaticCfg) (LruPolicy, error) {
	if cfg == nil {
		return LruPolicy{}, invalidf(cacheName, "config is empty")
	}
	lru, err := NewLruCfg(cacheName, cfg.Size, cfg.Lifetime, cfg.BackgroundUpdate)
	if err != nil {
		return LruPolicy{}, err
	}
	if cfg.Ways <= 0 {
		return LruPolicy{}, invalidf(cacheName, "cache ways is non-positive")
	}
	return LruPolicy{LruCfg: lru, Ways: cfg.Ways}, nil
}

// WaySize returns the capacity of a single way, at least 1.
func (p LruPolicy) WaySize() int {
	if size := p.Size / p.Ways; size > 0 {
		return size
	}
	return 1
}

func (p LruPolicy) MergeWith(other LruCfg) LruPolicy {
	merged := p
	merged.LruCfg = other
	return merged
}

func (p LruPolicy) String() string {
	return fmt.Sprintf("size=%d ways=%d lifetime=%s background-update=%t",
		p.Size, p.Ways, p.Lifetime, p.BackgroundUpdate)
}
