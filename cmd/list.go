package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/council-scraper/internal/catalogue"
)

var (
	listTags []string
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Inspect the council catalogue and run log",
}

var listCouncilsCmd = &cobra.Command{
	Use:   "councils",
	Short: "List catalogue councils",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), cfg, envNeeds{catalogue: true})
		if err != nil {
			return err
		}
		defer e.Close()

		descs, err := e.Catalogue.Select(catalogue.Filter{Tags: listTags, IncludeDisabled: true})
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(cmd.OutOrStdout(), descs)
		}
		printCouncils(cmd.OutOrStdout(), descs)
		return nil
	},
}

var listDisabledCmd = &cobra.Command{
	Use:   "disabled",
	Short: "List disabled councils",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), cfg, envNeeds{catalogue: true})
		if err != nil {
			return err
		}
		defer e.Close()

		descs := e.Catalogue.Disabled()
		if listJSON {
			return printJSON(cmd.OutOrStdout(), descs)
		}
		for _, d := range descs {
			printStatusLine(cmd.OutOrStdout(), d.Code, "disabled", d.Name)
		}
		return nil
	},
}

var listFailingCmd = &cobra.Command{
	Use:   "failing",
	Short: "List councils whose latest run failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		e, err := openEnv(cmd.Context(), cfg, envNeeds{store: true})
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.Store.Failing(cmd.Context())
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

var listRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the latest run per council",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		e, err := openEnv(cmd.Context(), cfg, envNeeds{store: true})
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.Store.LastRuns(cmd.Context())
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	listCmd.PersistentFlags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
	listCouncilsCmd.Flags().StringSliceVar(&listTags, "tag", nil, "only councils carrying every tag")
	listCmd.AddCommand(listCouncilsCmd, listDisabledCmd, listFailingCmd, listRunsCmd)
	rootCmd.AddCommand(listCmd)
}
