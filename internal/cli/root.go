// Package cli implements the newsroom-bridge command line.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Adda-Baaj/newsroom-bridge/internal/config"
)

// NewRootCommand builds the command tree. v receives flag bindings and loaded settings.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "newsroom-bridge",
		Short: "Import AP newsroom items into local content records",
		Long: `newsroom-bridge searches the AP Media API and maps items into local content
entities using a declarative mapping file. Mapped entities are stored, and a
content.imported event is sent to the configured publishers.

Examples:
  # Search for items
  newsroom-bridge search election --config ./bridge.yaml

  # Preview an item as an article without storing it
  newsroom-bridge preview article 9a0b7c...

  # Pull the feed on the configured schedule
  newsroom-bridge sync`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("verbosity", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("structured-logs", false, "emit JSON logs")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("verbosity"))
	_ = v.BindPFlag("log.json", root.PersistentFlags().Lookup("structured-logs"))

	load := func(ctx context.Context) (*app, error) {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return nil, err
		}
		return newApp(ctx, cfg)
	}

	root.AddCommand(
		newSearchCommand(load),
		newKindsCommand(load),
		newPreviewCommand(load),
		newImportCommand(load),
		newSyncCommand(load),
		newServeCommand(load),
	)
	return root
}

type loader func(ctx context.Context) (*app, error)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
