package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"alertrelay/internal/mailbox"
	"alertrelay/internal/pipeline"
)

func backfillCmd() *cobra.Command {
	var since, before, month, target string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run one cycle over a fixed date range",
		Long: "Runs one cycle over [--since, --before) or over a whole --month. Keys already in the " +
			"dedup store are skipped, so a backfill never repeats a live delivery.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target != pipeline.TargetAlerts && target != pipeline.TargetVehicles {
				return fmt.Errorf("unknown target %q: expected %s or %s", target, pipeline.TargetAlerts, pipeline.TargetVehicles)
			}

			ctx, cancel := signalContext()
			defer cancel()

			app, cleanup, err := bootstrapApp(ctx, target)
			if err != nil {
				return err
			}
			defer cleanup()

			criteria, err := backfillCriteria(since, before, month, app.Location())
			if err != nil {
				return err
			}
			criteria.UnseenOnly = app.Config.Mailbox.UnseenOnly

			_, err = app.RunCycle(ctx, criteria)
			return err
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "First day to include, YYYY-MM-DD")
	cmd.Flags().StringVar(&before, "before", "", "First day to exclude, YYYY-MM-DD (default: no upper bound)")
	cmd.Flags().StringVar(&month, "month", "", "Whole month to scan, YYYY-MM")
	cmd.Flags().StringVar(&target, "target", pipeline.TargetAlerts, "Destination: alerts or vehicles")
	cmd.MarkFlagsMutuallyExclusive("month", "since")
	cmd.MarkFlagsMutuallyExclusive("month", "before")
	cmd.MarkFlagsOneRequired("month", "since")

	return cmd
}

// backfillCriteria resolves the range flags to local midnights in loc.
func backfillCriteria(since, before, month string, loc *time.Location) (mailbox.Criteria, error) {
	if month != "" {
		start, err := time.ParseInLocation("2006-01", month, loc)
		if err != nil {
			return mailbox.Criteria{}, fmt.Errorf("invalid --month %q: expected YYYY-MM", month)
		}
		return mailbox.Criteria{Since: start, Before: start.AddDate(0, 1, 0)}, nil
	}

	if since == "" {
		return mailbox.Criteria{}, fmt.Errorf("either --month or --since is required")
	}
	start, err := time.ParseInLocation(time.DateOnly, since, loc)
	if err != nil {
		return mailbox.Criteria{}, fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", since)
	}

	criteria := mailbox.Criteria{Since: start}
	if before != "" {
		end, err := time.ParseInLocation(time.DateOnly, before, loc)
		if err != nil {
			return mailbox.Criteria{}, fmt.Errorf("invalid --before %q: expected YYYY-MM-DD", before)
		}
		if !end.After(start) {
			return mailbox.Criteria{}, fmt.Errorf("--before %s must be after --since %s", before, since)
		}
		criteria.Before = end
	}
	return criteria, nil
}
