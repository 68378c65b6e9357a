package commands

import (
	"errors"
	"fmt"

	ashdump "github.com/Borislavv/go-ash-dump"
	"github.com/spf13/cobra"
)

func newCleanupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Apply retention rules to dump directories",
		Long: `Remove leftover temporary files, dumps of older format versions,
expired dumps and dumps above max-count. The dump directory is locked
for the duration of the cleanup, a running cache owning it makes the
command fail for that cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, opts)
		},
	}
}

func runCleanup(cmd *cobra.Command, opts *options) error {
	out := cmd.OutOrStdout()

	names, err := opts.dumpCaches()
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		p, err := ashdump.New(name, opts.cfg.Caches[name], opts.cfg.DumpRoot, opts.logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("cache %s: %w", name, err))
			continue
		}

		p.Cleanup()
		m := p.Metrics()
		fmt.Fprintf(out, "%s: removed tmp=%d outdated=%d expired=%d excessive=%d errors=%d\n",
			name, m.RemovedTmp, m.RemovedOutdated, m.RemovedExpired, m.RemovedExcessive, m.RemoveErrors)

		if err = p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
