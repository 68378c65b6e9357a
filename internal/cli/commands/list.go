package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/Borislavv/go-ash-dump/internal/dump"
	"github.com/spf13/cobra"
)

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List files in dump directories",
		Long: `List every file of the dump directories with its classification.
Dumps of another format version are listed too, unrelated files are marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, opts)
		},
	}
}

func runList(cmd *cobra.Command, opts *options) error {
	names, err := opts.dumpCaches()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CACHE\tKIND\tVERSION\tUPDATED\tPATH")

	var errs []error
	for _, name := range names {
		retention, err := opts.retention(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		entries, err := dump.New(name, retention, opts.logger).List()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, e := range entries {
			version, updated := "-", "-"
			if e.Kind == dump.KindDump {
				version = strconv.FormatUint(e.Stats.FormatVersion, 10)
				updated = e.Stats.UpdateTime.Format(time.RFC3339Nano)
				if e.Stats.FormatVersion != retention.FormatVersion {
					version += " (other)"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, e.Kind, version, updated, e.Path)
		}
	}

	if err = w.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
