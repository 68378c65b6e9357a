package configset

import (
	"errors"
	"fmt"
	"time"

	"github.com/Borislavv/go-ash-dump/config"
	"github.com/tidwall/gjson"
)

var ErrInvalidDocument = errors.New("invalid config document")

const (
	keyUpdateIntervalMs     = "update-interval-ms"
	keyUpdateJitterMs       = "update-jitter-ms"
	keyFullUpdateIntervalMs = "full-update-interval-ms"
	keyCleanupIntervalMs    = "additional-cleanup-interval-ms"

	keySize             = "size"
	keyLifetimeMs       = "lifetime-ms"
	keyBackgroundUpdate = "background-update"
)

// Names are the keys of the documents holding cache overrides inside a config snapshot.
// An empty name disables the corresponding overrides.
type Names struct {
	Config    string
	LruConfig string
}

// Set maps cache names to live overrides. It never changes after New and is safe for concurrent use.
type Set struct {
	names      Names
	configs    map[string]config.UpdateIntervals
	lruConfigs map[string]config.LruCfg
}

// New parses the overrides out of a JSON snapshot of config documents.
// A nil or empty snapshot yields a set without overrides.
func New(names Names, snapshot []byte) (*Set, error) {
	s := &Set{
		names:      names,
		configs:    make(map[string]config.UpdateIntervals),
		lruConfigs: make(map[string]config.LruCfg),
	}
	if len(snapshot) == 0 {
		return s, nil
	}
	if !gjson.ValidBytes(snapshot) {
		return nil, fmt.Errorf("%w: snapshot is not a valid json", ErrInvalidDocument)
	}
	root := gjson.ParseBytes(snapshot)

	if names.Config != "" {
		if err := forEachCache(root, names.Config, func(name string, value gjson.Result) error {
			iv, err := parseUpdateIntervals(name, value)
			if err != nil {
				return err
			}
			s.configs[name] = iv
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if names.LruConfig != "" {
		if err := forEachCache(root, names.LruConfig, func(name string, value gjson.Result) error {
			lru, err := parseLruCfg(name, value)
			if err != nil {
				return err
			}
			s.lruConfigs[name] = lru
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Set) Names() Names {
	return s.names
}

// GetConfig returns the update intervals override of the cache, if any.
func (s *Set) GetConfig(cacheName string) (config.UpdateIntervals, bool) {
	iv, ok := s.configs[cacheName]
	return iv, ok
}

// GetLruConfig returns the LRU override of the cache, if any.
func (s *Set) GetLruConfig(cacheName string) (config.LruCfg, bool) {
	lru, ok := s.lruConfigs[cacheName]
	return lru, ok
}

func (s *Set) IsConfigEnabled() bool {
	return s.names.Config != ""
}

func (s *Set) IsLruConfigEnabled() bool {
	return s.names.LruConfig != ""
}

// forEachCache walks the object stored under docName. The key is looked up literally,
// document names may contain dots and other gjson path syntax.
func forEachCache(root gjson.Result, docName string, fn func(name string, value gjson.Result) error) error {
	var doc gjson.Result
	root.ForEach(func(key, value gjson.Result) bool {
		if key.String() == docName {
			doc = value
			return false
		}
		return true
	})
	if !doc.Exists() {
		return fmt.Errorf("%w: document %q is missing", ErrInvalidDocument, docName)
	}
	if !doc.IsObject() {
		return fmt.Errorf("%w: document %q must be an object", ErrInvalidDocument, docName)
	}

	var err error
	doc.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			err = fmt.Errorf("%w: %s: cache %q must be an object", ErrInvalidDocument, docName, key.String())
			return false
		}
		err = fn(key.String(), value)
		return err == nil
	})
	return err
}

func parseUpdateIntervals(name string, value gjson.Result) (config.UpdateIntervals, error) {
	update, err := parseMs(name, value, keyUpdateIntervalMs, 0)
	if err != nil {
		return config.UpdateIntervals{}, err
	}
	jitter, err := parseMs(name, value, keyUpdateJitterMs, 0)
	if err != nil {
		return config.UpdateIntervals{}, err
	}
	full, err := parseMs(name, value, keyFullUpdateIntervalMs, 0)
	if err != nil {
		return config.UpdateIntervals{}, err
	}
	cleanup, err := parseMs(name, value, keyCleanupIntervalMs, config.DefaultCleanupInterval)
	if err != nil {
		return config.UpdateIntervals{}, err
	}
	return config.NewUpdateIntervals(name, update, jitter, full, cleanup)
}

func parseLruCfg(name string, value gjson.Result) (config.LruCfg, error) {
	size := value.Get(keySize)
	if size.Type != gjson.Number {
		return config.LruCfg{}, fmt.Errorf("%w: cache %q: '%s' must be a number", ErrInvalidDocument, name, keySize)
	}
	lifetime, err := parseMs(name, value, keyLifetimeMs, 0)
	if err != nil {
		return config.LruCfg{}, err
	}

	var backgroundUpdate bool
	switch bg := value.Get(keyBackgroundUpdate); bg.Type {
	case gjson.Null:
	case gjson.True, gjson.False:
		backgroundUpdate = bg.Bool()
	default:
		return config.LruCfg{}, fmt.Errorf("%w: cache %q: '%s' must be a boolean",
			ErrInvalidDocument, name, keyBackgroundUpdate)
	}

	return config.NewLruCfg(name, int(size.Int()), lifetime, backgroundUpdate)
}

func parseMs(name string, value gjson.Result, key string, def time.Duration) (time.Duration, error) {
	v := value.Get(key)
	switch v.Type {
	case gjson.Null:
		return def, nil
	case gjson.Number:
		if ms := v.Int(); ms >= 0 {
			return time.Duration(ms) * time.Millisecond, nil
		}
	}
	return 0, fmt.Errorf("%w: cache %q: '%s' must be a non-negative number of milliseconds",
		ErrInvalidDocument, name, key)
}
