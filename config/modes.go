package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// AllowedUpdateTypes defines which kinds of updates a cache performs.
type AllowedUpdateTypes int

const (
	FullAndIncremental AllowedUpdateTypes = iota
	OnlyFull
	OnlyIncremental
)

const (
	updateTypesFullAndIncremental = "full-and-incremental"
	updateTypesOnlyFull           = "only-full"
	updateTypesOnlyIncremental    = "only-incremental"
)

func ParseAllowedUpdateTypes(s string) (AllowedUpdateTypes, error) {
	switch s {
	case updateTypesFullAndIncremental:
		return FullAndIncremental, nil
	case updateTypesOnlyFull:
		return OnlyFull, nil
	case updateTypesOnlyIncremental:
		return OnlyIncremental, nil
	}
	return 0, fmt.Errorf("invalid update types %q", s)
}

func (t AllowedUpdateTypes) String() string {
	switch t {
	case FullAndIncremental:
		return updateTypesFullAndIncremental
	case OnlyFull:
		return updateTypesOnlyFull
	case OnlyIncremental:
		return updateTypesOnlyIncremental
	}
	return fmt.Sprintf("AllowedUpdateTypes(%d)", int(t))
}

// FirstUpdateMode defines how a cache behaves on startup when a dump was loaded.
type FirstUpdateMode int

const (
	// FirstUpdateRequired fails the startup unless a fresh update succeeds.
	FirstUpdateRequired FirstUpdateMode = iota
	// FirstUpdateBestEffort tries a fresh update but keeps the dump data on failure.
	FirstUpdateBestEffort
	// FirstUpdateSkip serves the dump data and postpones the first update.
	FirstUpdateSkip
)

const (
	firstUpdateRequired   = "required"
	firstUpdateBestEffort = "best-effort"
	firstUpdateSkip       = "skip"
)

func ParseFirstUpdateMode(s string) (FirstUpdateMode, error) {
	switch s {
	case firstUpdateRequired:
		return FirstUpdateRequired, nil
	case firstUpdateBestEffort:
		return FirstUpdateBestEffort, nil
	case firstUpdateSkip:
		return FirstUpdateSkip, nil
	}
	return 0, fmt.Errorf("invalid first update mode %q", s)
}

func (m FirstUpdateMode) String() string {
	switch m {
	case FirstUpdateRequired:
		return firstUpdateRequired
	case FirstUpdateBestEffort:
		return firstUpdateBestEffort
	case FirstUpdateSkip:
		return firstUpdateSkip
	}
	return fmt.Sprintf("FirstUpdateMode(%d)", int(m))
}

func (m *FirstUpdateMode) UnmarshalYAML(value *yaml.Node) error {
	mode, err := ParseFirstUpdateMode(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*m = mode
	return nil
}
