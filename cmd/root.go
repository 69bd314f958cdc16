package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "shapeset",
	Short: "Import, inspect and query zipped shapefile datasets",
	Long: `shapeset turns zipped ESRI shapefile bundles into polygons paired with their
dBase attributes. Datasets come from the built-in registry or a YAML file
(registry.path). Shapes can be inspected locally, loaded into PostGIS,
queried by point or served over HTTP.

Configuration is read from config.yaml and SHAPESET_* environment variables.`,
	SilenceUsage: true,
	// Every subcommand needs config and a logger; validation is per mode and
	// happens in the subcommand once its flags are applied.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.Name()),
			zap.String("schema", cfg.Store.Schema),
			zap.Bool("database", cfg.Store.DatabaseURL != ""),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
