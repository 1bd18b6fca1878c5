package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/council-scraper/internal/catalogue"
	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/worker"
)

var (
	runCouncils    []string
	runTags        []string
	runAll         bool
	runVerbose     bool
	runConcurrency int
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape councils locally without the queue",
	Long:  "Runs the selected councils in this process, a few at a time, writes results to the store, and prints one line (or JSON report) per council.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !runAll && len(runCouncils) == 0 && len(runTags) == 0 {
			return eris.New("run: pass --all or at least one of --council, --tag")
		}
		if runConcurrency > 0 {
			cfg.Worker.Concurrency = runConcurrency
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		e, err := openEnv(ctx, cfg, envNeeds{catalogue: true, store: true})
		if err != nil {
			return err
		}
		defer e.Close()

		descs, err := e.Catalogue.Select(catalogue.Filter{Codes: runCouncils, Tags: runTags, IncludeDisabled: len(runCouncils) > 0})
		if err != nil {
			return err
		}
		codes := make([]string, 0, len(descs))
		for _, d := range descs {
			codes = append(codes, d.Code)
		}

		w := worker.New(e.Catalogue, e.Store, e.Store, worker.OptionsFromConfig(cfg))
		reports := w.HandleAll(ctx, codes, model.TaskOptions{Verbose: runVerbose, Tags: runTags})

		if runJSON {
			return printJSON(cmd.OutOrStdout(), reports)
		}

		failed := 0
		for _, r := range reports {
			detail := ""
			switch r.Status {
			case worker.StatusSuccess:
				detail = pluralRecords(len(r.Outcome.Records), len(r.Outcome.Issues))
			case worker.StatusFailure:
				detail = r.Error
				failed++
			}
			printStatusLine(cmd.OutOrStdout(), r.Council, string(r.Status), detail)
		}
		if failed > 0 {
			return eris.Errorf("run: %d of %d councils failed", failed, len(reports))
		}
		return nil
	},
}

func pluralRecords(records, issues int) string {
	s := "records"
	if records == 1 {
		s = "record"
	}
	i := "issues"
	if issues == 1 {
		i = "issue"
	}
	return fmt.Sprintf("%d %s, %d %s", records, s, issues, i)
}

func init() {
	runCmd.Flags().StringSliceVar(&runCouncils, "council", nil, "council codes to run (disabled councils report as disabled)")
	runCmd.Flags().StringSliceVar(&runTags, "tag", nil, "only councils carrying every tag")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every enabled council")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "log every skipped item")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "councils run at once (default from config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print full reports as JSON")
	rootCmd.AddCommand(runCmd)
}
