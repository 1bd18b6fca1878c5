package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/config"
	"github.com/sells-group/council-scraper/internal/worker"
)

var (
	workConcurrency int
	workOnce        bool
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Consume council tasks from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if workConcurrency > 0 {
			cfg.Worker.Concurrency = workConcurrency
		}
		if err := cfg.Validate("work"); err != nil {
			return err
		}

		e, err := openEnv(ctx, cfg, envNeeds{catalogue: true, store: true, queue: true})
		if err != nil {
			return err
		}
		defer e.Close()

		w := worker.New(e.Catalogue, e.Store, e.Store, worker.OptionsFromConfig(cfg))
		zap.L().Info("worker ready",
			zap.String("host", config.Hostname()),
			zap.Int("councils", e.Catalogue.Len()),
		)

		if workOnce {
			processed, err := w.ProcessOne(ctx, e.Queue)
			if err != nil {
				return err
			}
			if !processed {
				zap.L().Info("queue empty")
			}
			return nil
		}
		return w.Serve(ctx, e.Queue)
	},
}

func init() {
	workCmd.Flags().IntVar(&workConcurrency, "concurrency", 0, "tasks processed at once (default from config)")
	workCmd.Flags().BoolVar(&workOnce, "once", false, "process at most one task and exit")
	rootCmd.AddCommand(workCmd)
}
