package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deadLetterCmd = &cobra.Command{
	Use:     "deadletter",
	Aliases: []string{"dlq"},
	Short:   "Inspect and requeue dead-lettered tasks",
}

var deadLetterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("dispatch"); err != nil {
			return err
		}
		e, err := openEnv(cmd.Context(), cfg, envNeeds{queue: true})
		if err != nil {
			return err
		}
		defer e.Close()

		tasks, err := e.Queue.DeadLetters(cmd.Context())
		if err != nil {
			return err
		}
		for _, t := range tasks {
			printStatusLine(cmd.OutOrStdout(), t.Council, "dead", fmt.Sprintf("%s enqueued %s", t.ID, t.EnqueuedAt.Format("2006-01-02 15:04")))
		}
		return nil
	},
}

var deadLetterRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Move every dead-lettered task back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("dispatch"); err != nil {
			return err
		}
		e, err := openEnv(cmd.Context(), cfg, envNeeds{queue: true})
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.Queue.Requeue(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("requeued dead letters", zap.Int("count", n))
		fmt.Fprintf(cmd.OutOrStdout(), "requeued %d task(s)\n", n)
		return nil
	},
}

func init() {
	deadLetterCmd.AddCommand(deadLetterListCmd, deadLetterRequeueCmd)
	rootCmd.AddCommand(deadLetterCmd)
}
