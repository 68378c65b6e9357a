package commands

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/Borislavv/go-ash-dump/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// options are shared by all subcommands and filled by persistent flags.
type options struct {
	configPath string
	logLevel   string
	caches     []string

	cfg    *config.File
	logger zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ashdump",
		Short: "Inspect and maintain cache dumps",
		Long: `Validate cache update and dump configs, inspect dump directories
and apply retention rules to them.

Examples:
  ashdump validate -c config.yaml
  ashdump list -c config.yaml --cache users
  ashdump cleanup -c config.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return opts.init(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the yaml config")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flags.StringSliceVar(&opts.caches, "cache", nil, "limit the command to these caches")

	root.AddCommand(
		newValidateCmd(opts),
		newListCmd(opts),
		newLatestCmd(opts),
		newCleanupCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	root := NewRootCmd()
	root.Version = version
	return root.Execute()
}

func (o *options) init(cmd *cobra.Command) error {
	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.logLevel, err)
	}
	o.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	if o.cfg, err = config.LoadConfig(o.configPath); err != nil {
		return err
	}
	return nil
}

// cacheNames returns the configured caches selected by --cache, sorted.
func (o *options) cacheNames() ([]string, error) {
	if len(o.caches) == 0 {
		return slices.Sorted(maps.Keys(o.cfg.Caches)), nil
	}

	names := slices.Clone(o.caches)
	slices.Sort(names)
	for _, name := range names {
		if _, ok := o.cfg.Caches[name]; !ok {
			return nil, fmt.Errorf("cache %q is not configured in %s", name, o.configPath)
		}
	}
	return slices.Compact(names), nil
}

// dumpCaches returns the selected caches which have a dump section.
func (o *options) dumpCaches() ([]string, error) {
	names, err := o.cacheNames()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(names, func(name string) bool {
		cfg := o.cfg.Caches[name]
		return cfg == nil || cfg.Dump == nil
	}), nil
}

func (o *options) retention(name string) (config.DumpRetention, error) {
	return o.cfg.Caches[name].Dump.Retention(o.cfg.DumpRoot, name)
}

func readDocument(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry document %s: %w", path, err)
	}
	return data, nil
}
