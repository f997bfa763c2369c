// Package root wires the torrentstreamd command tree: open/stream a
// location, list files, print version — a cobra-based host standing in
// for the media-player plugin shell spec.md treats as out of scope.
package root

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mindsgn-studio/torrentstream/internal/config"
)

var cfgFile string

// Execute runs the torrentstreamd command tree.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torrentstreamd",
		Short: "Stream a torrent or magnet link as a sequential byte source",
		Long: "torrentstreamd drives the piece-streaming controller directly, " +
			"standing in for a media player that pulls sequential blocks " +
			"(with occasional seeks) from a BitTorrent swarm.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.torrentstream.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "console", "log format (json, console)")

	cmd.AddCommand(newOpenCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".torrentstream")
		v.AddConfigPath("$HOME")
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

