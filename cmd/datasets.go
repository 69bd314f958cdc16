package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/shapeset/internal/registry"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List registered datasets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("datasets"); err != nil {
			return err
		}
		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}
		formatDatasets(os.Stdout, reg.List())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

func formatDatasets(out io.Writer, datasets []registry.Dataset) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME FIELD\tURL")
	_, _ = fmt.Fprintln(w, "--\t----------\t---")
	for _, d := range datasets {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.NameField, d.URL)
	}
	_ = w.Flush()
}
