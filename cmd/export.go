package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/catalogue"
	"github.com/sells-group/council-scraper/internal/model"
)

var (
	exportTags   []string
	exportOutput string
)

// exportColumns are the CSV header, in column order.
var exportColumns = []string{
	"council_id",
	"raw_division",
	"raw_identifier",
	"email",
	"url",
	"raw_name",
	"raw_party",
	"photo_url",
	"standing_down",
}

// councillorReader is the part of the store export needs.
type councillorReader interface {
	Councillors(ctx context.Context, council string) ([]model.Councillor, error)
}

var exportCmd = &cobra.Command{
	Use:   "export [codes...]",
	Short: "Write every stored councillor as one CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		e, err := openEnv(cmd.Context(), cfg, envNeeds{catalogue: true, store: true})
		if err != nil {
			return err
		}
		defer e.Close()

		descs, err := e.Catalogue.Select(catalogue.Filter{Codes: args, Tags: exportTags, IncludeDisabled: true})
		if err != nil {
			return err
		}
		codes := make([]string, 0, len(descs))
		for _, d := range descs {
			codes = append(codes, d.Code)
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", exportOutput)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		n, err := writeCouncillorCSV(cmd.Context(), out, e.Store, codes)
		if err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("councils", len(codes)), zap.Int("records", n))
		return nil
	},
}

// writeCouncillorCSV writes a header and one row per stored councillor of
// each council, in the given council order. It returns the row count.
func writeCouncillorCSV(ctx context.Context, w io.Writer, st councillorReader, codes []string) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return 0, eris.Wrap(err, "export: write header")
	}

	rows := 0
	for _, code := range codes {
		recs, err := st.Councillors(ctx, code)
		if err != nil {
			return rows, eris.Wrapf(err, "export: read %s", code)
		}
		for _, c := range recs {
			row := []string{
				code, c.Division, c.Identifier, c.Email, c.URL,
				c.Name, c.Party, c.PhotoURL, c.StandingDown,
			}
			if err := cw.Write(row); err != nil {
				return rows, eris.Wrapf(err, "export: write %s", code)
			}
			rows++
		}
	}

	cw.Flush()
	return rows, eris.Wrap(cw.Error(), "export: flush")
}

func init() {
	exportCmd.Flags().StringSliceVar(&exportTags, "tag", nil, "only councils carrying every tag")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
