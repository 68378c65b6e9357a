package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned (wrapped) for every configuration that must not be started with.
var ErrInvalidConfig = errors.New("invalid config")

const defaultDumpRootDir = "ash-dump"

// File is the static configuration file layout.
type File struct {
	// DumpRoot is the parent directory of per-cache dump directories.
	// Each cache dumps into DumpRoot/<cache name> unless dump.dump-directory is set.
	DumpRoot string `yaml:"dump-root"`

	// Registry names the documents of the dynamic config snapshot
	// which carry live overrides for caches.
	Registry RegistryCfg `yaml:"registry"`

	Caches    map[string]*CacheCfg     `yaml:"caches"`
	LruCaches map[string]*LruStaticCfg `yaml:"lru-caches"`
}

type RegistryCfg struct {
	// ConfigName is the key of the update intervals document. Empty disables live overrides.
	ConfigName string `yaml:"config-name"`

	// LruConfigName is the key of the LRU caches document. Empty disables live overrides.
	LruConfigName string `yaml:"lru-config-name"`

	// Document is an optional path to a JSON snapshot of dynamic config documents.
	Document string `yaml:"document"`
}

func (cfg *File) AdjustConfig() {
	if cfg.DumpRoot == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cfg.DumpRoot = filepath.Join(dir, defaultDumpRootDir)
		}
	}
	for _, c := range cfg.Caches {
		if c != nil {
			c.AdjustConfig()
		}
	}
}

func LoadConfig(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *File
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		cfg = &File{}
	}
	cfg.AdjustConfig()

	return cfg, nil
}

// ParseCache decodes a single cache config fragment.
func ParseCache(data []byte) (*CacheCfg, error) {
	var cfg CacheCfg
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal cache config: %w", err)
	}
	cfg.AdjustConfig()
	return &cfg, nil
}

func invalidf(cacheName, format string, args ...any) error {
	return fmt.Errorf("%w: cache %q: %s", ErrInvalidConfig, cacheName, fmt.Sprintf(format, args...))
}

type keySet map[string]struct{}

func mappingKeys(node *yaml.Node) keySet {
	keys := make(keySet, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys[node.Content[i].Value] = struct{}{}
	}
	return keys
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
