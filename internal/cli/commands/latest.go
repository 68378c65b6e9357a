package commands

import (
	"fmt"

	"github.com/Borislavv/go-ash-dump/internal/dump"
	"github.com/spf13/cobra"
)

func newLatestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the dump each cache would load on start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLatest(cmd, opts)
		},
	}
}

func runLatest(cmd *cobra.Command, opts *options) error {
	out := cmd.OutOrStdout()

	names, err := opts.dumpCaches()
	if err != nil {
		return err
	}

	for _, name := range names {
		retention, err := opts.retention(name)
		if err != nil {
			return err
		}

		latest, ok := dump.New(name, retention, opts.logger).GetLatestDump()
		if !ok {
			fmt.Fprintf(out, "%s: no usable dump\n", name)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", name, latest.FullPath)
	}
	return nil
}
