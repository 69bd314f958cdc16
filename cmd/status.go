package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/loader"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show load status per dataset",
	Long:  "Lists the last successful load of every dataset stored in PostGIS.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := newLoader(pool, cfg).Status(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(rows) == 0 {
			zap.L().Info("no datasets loaded, run 'shapeset import' first")
			return nil
		}

		formatStatusRows(os.Stdout, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatusRows writes a tabular representation of load status rows to w.
func formatStatusRows(out io.Writer, rows []loader.StatusRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tROWS\tPLACEHOLDERS\tLOADED\tDURATION\tRUN")
	_, _ = fmt.Fprintln(w, "-------\t----\t------------\t------\t--------\t---")

	for _, r := range rows {
		dur := (time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond)
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			r.DatasetID, r.RowCount, r.Placeholders,
			r.LoadedAt.UTC().Format("2006-01-02 15:04"), dur, r.RunID)
	}
	_ = w.Flush()
}
