package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shapeset/internal/dataset"
	"github.com/sells-group/shapeset/internal/export"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive.zip>",
	Short: "Assemble a local shapefile bundle and summarize it",
	Long: `Reads a zipped shapefile bundle from disk, pairs each polygon with its attribute
row and prints one line per shape. With --geojson the shapes are written to stdout
as a GeoJSON FeatureCollection instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("inspect"); err != nil {
			return err
		}
		nameField, _ := cmd.Flags().GetString("name-field")
		asGeoJSON, _ := cmd.Flags().GetBool("geojson")
		if nameField == "" {
			nameField = cfg.Import.NameField
		}

		archive, err := readArchive(args[0])
		if err != nil {
			return err
		}

		shapes, err := buildAssembler(cfg).Assemble(archive, nameField)
		if err != nil {
			return eris.Wrap(err, "inspect")
		}

		if asGeoJSON {
			return export.Write(os.Stdout, shapes)
		}
		formatShapes(os.Stdout, shapes)
		return nil
	},
}

func init() {
	inspectCmd.Flags().String("name-field", "", "attribute holding the shape name (default from config)")
	inspectCmd.Flags().Bool("geojson", false, "write a GeoJSON FeatureCollection to stdout")
	rootCmd.AddCommand(inspectCmd)
}

// formatShapes writes one row per shape followed by the totals.
func formatShapes(out io.Writer, shapes []dataset.Shape) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tNAME\tGEOMETRY\tPOLYGONS\tATTRIBUTES")
	_, _ = fmt.Fprintln(w, "-\t----\t--------\t--------\t----------")

	for i, s := range shapes {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n",
			i, s.Name, s.Geometry.Kind, len(s.Geometry.Polygons()), len(s.Metadata))
	}
	_ = w.Flush()

	sum := dataset.Summarize(shapes)
	_, _ = fmt.Fprintf(out, "\n%d shapes, %d placeholders\n", sum.Shapes, sum.Placeholders)
}
