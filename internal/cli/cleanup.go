package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/chunkstore"
)

func newCleanupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stored chunks older than --hours, or all of them with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCleanup()
		},
	}

	cmd.Flags().Bool(allKey, false, "delete every chunk regardless of age")
	cmd.Flags().Float64(hoursKey, 1, "delete chunks older than this many hours")
	cmd.Flags().Bool(dryRunKey, false, "report what would be deleted without deleting")
	a.v.BindPFlag(allKey, cmd.Flags().Lookup(allKey))
	a.v.BindPFlag(hoursKey, cmd.Flags().Lookup(hoursKey))
	a.v.BindPFlag(dryRunKey, cmd.Flags().Lookup(dryRunKey))
	return cmd
}

func (a *app) runCleanup() error {
	store, err := a.store()
	if err != nil {
		return err
	}

	dryRun := a.v.GetBool(dryRunKey)
	var report chunkstore.SweepReport
	if a.v.GetBool(allKey) {
		report, err = store.SweepAll(dryRun)
	} else {
		hours := a.v.GetFloat64(hoursKey)
		if hours <= 0 {
			return fmt.Errorf("--hours must be greater than 0, got %v", hours)
		}
		report, err = store.SweepOlderThan(time.Duration(hours*float64(time.Hour)), dryRun)
	}
	if err != nil {
		return err
	}

	verb := "Deleted"
	if report.DryRun {
		verb = "Would delete"
	}
	fmt.Fprintf(a.out, "%s %d files (%d bytes) across %d streams in %s\n",
		verb, report.Files, report.Bytes, report.Streams, store.Dir())
	return nil
}
