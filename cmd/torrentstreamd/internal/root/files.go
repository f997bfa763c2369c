package root

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/anacrolix/torrent"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mindsgn-studio/torrentstream/internal/access"
	"github.com/mindsgn-studio/torrentstream/internal/cacheio"
	"github.com/mindsgn-studio/torrentstream/internal/history"
	"github.com/mindsgn-studio/torrentstream/internal/logging"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine/anacrolixengine"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files <location>",
		Short: "List the files inside a torrent or magnet link, largest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer log.Sync()

			clientCfg := torrent.NewDefaultClientConfig()
			clientCfg.DataDir = cfg.DownloadDir

			engine, err := anacrolixengine.New(*clientCfg)
			if err != nil {
				return fmt.Errorf("construct engine: %w", err)
			}
			defer engine.Close()

			cache := cacheio.New(cfg.CacheDir, log)

			hist, err := history.Open(filepath.Join(cfg.CacheDir, "history.db"))
			if err != nil {
				log.Warn("session history unavailable", zap.Error(err))
				hist = nil
			} else {
				defer hist.Close()
			}

			ta, err := access.Open(context.Background(), args[0], cfg, engine, cache, hist, log)
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			defer ta.Close()

			for _, f := range ta.Files() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d bytes\n", f.Index, f.Path, f.Length)
			}
			return nil
		},
	}
	return cmd
}
