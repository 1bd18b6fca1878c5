package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/dispatch"
)

var (
	dispatchCouncils     []string
	dispatchTags         []string
	dispatchOnlyFailed   bool
	dispatchRefreshHours int
	dispatchAll          bool
	dispatchVerbose      bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Publish one scrape task per selected council",
	Example: `  council-scraper dispatch --all
  council-scraper dispatch --council KIR,CAM
  council-scraper dispatch --tag modgov --refresh 24
  council-scraper dispatch --failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		filter, err := dispatchFilter()
		if err != nil {
			return err
		}
		if err := cfg.Validate("dispatch"); err != nil {
			return err
		}

		needsRunLog := filter.OnlyFailed || filter.Refresh > 0
		e, err := openEnv(ctx, cfg, envNeeds{catalogue: true, queue: true, store: needsRunLog})
		if err != nil {
			return err
		}
		defer e.Close()

		tasks, err := dispatch.New(e.Catalogue, e.Queue, e.runLog()).Dispatch(ctx, filter)
		if err != nil {
			return err
		}

		zap.L().Info("dispatched councils", zap.Int("tasks", len(tasks)))
		for _, t := range tasks {
			printStatusLine(cmd.OutOrStdout(), t.Council, "queued", t.ID)
		}
		return nil
	},
}

func dispatchFilter() (dispatch.Filter, error) {
	refresh := dispatchRefreshHours
	if refresh == 0 {
		refresh = cfg.Dispatch.RefreshHours
	}
	f := dispatch.Filter{
		Codes:      dispatchCouncils,
		Tags:       dispatchTags,
		OnlyFailed: dispatchOnlyFailed,
		Refresh:    time.Duration(refresh) * time.Hour,
		Verbose:    dispatchVerbose,
	}
	if !dispatchAll && len(f.Codes) == 0 && len(f.Tags) == 0 && !f.OnlyFailed {
		return f, eris.New("dispatch: pass --all or at least one of --council, --tag, --failed")
	}
	if dispatchAll && len(f.Codes) > 0 {
		return f, eris.New("dispatch: --all and --council are mutually exclusive")
	}
	return f, nil
}

func init() {
	dispatchCmd.Flags().StringSliceVar(&dispatchCouncils, "council", nil, "council codes to dispatch")
	dispatchCmd.Flags().StringSliceVar(&dispatchTags, "tag", nil, "only councils carrying every tag")
	dispatchCmd.Flags().BoolVar(&dispatchOnlyFailed, "failed", false, "only councils whose last run failed")
	dispatchCmd.Flags().IntVar(&dispatchRefreshHours, "refresh", 0, "skip councils completed within this many hours (default from config)")
	dispatchCmd.Flags().BoolVar(&dispatchAll, "all", false, "dispatch every enabled council")
	dispatchCmd.Flags().BoolVarP(&dispatchVerbose, "verbose", "v", false, "log every skipped item while running")
	rootCmd.AddCommand(dispatchCmd)
}
