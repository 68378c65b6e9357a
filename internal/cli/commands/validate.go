package commands

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Borislavv/go-ash-dump/config"
	"github.com/Borislavv/go-ash-dump/internal/configset"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate cache configs",
		Long: `Build the update policy and dump retention of every configured cache
and report the resolved values. Live overrides from the registry document
are applied when it is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}
}

func runValidate(cmd *cobra.Command, opts *options) error {
	out := cmd.OutOrStdout()

	set, err := loadConfigSet(opts.cfg.Registry)
	if err != nil {
		return err
	}

	names, err := opts.cacheNames()
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		cfg := opts.cfg.Caches[name]
		if cfg == nil {
			errs = append(errs, fmt.Errorf("%w: cache %q: config is empty", config.ErrInvalidConfig, name))
			continue
		}

		policy, err := config.NewUpdatePolicy(name, cfg, opts.logger)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if iv, ok := set.GetConfig(name); ok {
			policy = policy.MergeWith(iv)
		}

		fmt.Fprintf(out, "cache %s: types=%s update=%s jitter=%s full=%s cleanup=%s\n",
			name, policy.AllowedUpdateTypes, policy.UpdateInterval, policy.UpdateJitter,
			policy.FullUpdateInterval, policy.CleanupInterval)

		if cfg.Dump == nil {
			continue
		}
		retention, err := opts.retention(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		maxAge := "no limit"
		if retention.MaxAge != nil {
			maxAge = retention.MaxAge.String()
		}
		fmt.Fprintf(out, "  dump: enabled=%t dir=%s version=%d first-update=%s max-age=%s max-count=%d\n",
			cfg.Dump.Enabled(), retention.Directory, retention.FormatVersion,
			policy.FirstUpdateMode, maxAge, retention.MaxCount)
	}

	if len(opts.caches) == 0 {
		for _, name := range slices.Sorted(maps.Keys(opts.cfg.LruCaches)) {
			policy, err := config.NewLruPolicy(name, opts.cfg.LruCaches[name])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if lru, ok := set.GetLruConfig(name); ok {
				policy = policy.MergeWith(lru)
			}
			fmt.Fprintf(out, "lru cache %s: %s\n", name, policy)
		}
	}

	return errors.Join(errs...)
}

func loadConfigSet(registry config.RegistryCfg) (*configset.Set, error) {
	doc, err := readDocument(registry.Document)
	if err != nil {
		return nil, err
	}
	return configset.New(configset.Names{
		Config:    registry.ConfigName,
		LruConfig: registry.LruConfigName,
	}, doc)
}
