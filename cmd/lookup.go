package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shapeset/internal/spatial"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <archive.zip>",
	Short: "Find the shapes of a local bundle that contain a point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("lookup"); err != nil {
			return err
		}
		lon, _ := cmd.Flags().GetFloat64("lon")
		lat, _ := cmd.Flags().GetFloat64("lat")
		nameField, _ := cmd.Flags().GetString("name-field")
		if nameField == "" {
			nameField = cfg.Import.NameField
		}
		if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return eris.Errorf("lookup: point (%g, %g) is outside lon/lat range", lon, lat)
		}

		archive, err := readArchive(args[0])
		if err != nil {
			return err
		}
		shapes, err := buildAssembler(cfg).Assemble(archive, nameField)
		if err != nil {
			return eris.Wrap(err, "lookup")
		}

		idx := spatial.NewIndex(shapes)
		formatMatches(os.Stdout, idx.Lookup(lon, lat))
		return nil
	},
}

func init() {
	lookupCmd.Flags().Float64("lon", 0, "longitude of the point")
	lookupCmd.Flags().Float64("lat", 0, "latitude of the point")
	lookupCmd.Flags().String("name-field", "", "attribute holding the shape name (default from config)")
	_ = lookupCmd.MarkFlagRequired("lon")
	_ = lookupCmd.MarkFlagRequired("lat")
	rootCmd.AddCommand(lookupCmd)
}

func formatMatches(out io.Writer, matches []spatial.Match) {
	if len(matches) == 0 {
		_, _ = fmt.Fprintln(out, "no shape contains the point")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tNAME\tGEOMETRY")
	for _, m := range matches {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", m.Position, m.Shape.Name, m.Shape.Geometry.Kind)
	}
	_ = w.Flush()
}
