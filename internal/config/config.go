// Package config is the configuration surface of spec.md §6: name-based
// settings a host player would otherwise look up one at a time, collected
// here into a single viper-backed struct with file/env/flag precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config mirrors the configuration surface table of spec.md §6.
type Config struct {
	TorrentFileIndex int     `mapstructure:"torrent-file-index"`
	DownloadDir      string  `mapstructure:"download-dir"`
	KeepFiles        bool    `mapstructure:"keep-files"`
	UploadRateLimit  int     `mapstructure:"upload-rate-limit"`
	DownloadRateLimit int    `mapstructure:"download-rate-limit"`
	ShareRatioLimit  float64 `mapstructure:"share-ratio-limit"`

	CacheDir string    `mapstructure:"cache-dir"`
	Log      LogConfig `mapstructure:"log"`
}

// LogConfig is the ambient logging configuration, independent of the
// streaming configuration surface proper.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration spec.md §6 lists as each key's default.
func Default() *Config {
	downloadDir, err := os.UserHomeDir()
	if err != nil {
		downloadDir = "."
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = ".cache"
	}
	return &Config{
		TorrentFileIndex:  -1,
		DownloadDir:       downloadDir,
		KeepFiles:         true,
		UploadRateLimit:   0,
		DownloadRateLimit: 0,
		ShareRatioLimit:   2.0,
		CacheDir:          cacheDir + "/torrentstream",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate rejects configurations that would fail at open time with
// NoDownloadDir (spec.md §7).
func (c *Config) Validate() error {
	if c.DownloadDir == "" {
		return fmt.Errorf("config: download-dir cannot be empty")
	}
	if c.ShareRatioLimit < 0 {
		return fmt.Errorf("config: share-ratio-limit must be non-negative")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("config: log.format must be 'json' or 'console'")
	}
	return nil
}

// Load reads configuration from (in increasing precedence) defaults, an
// optional config file, and environment variables prefixed TORRENTSTREAM_.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	defaults := Default()

	v.SetDefault("torrent-file-index", defaults.TorrentFileIndex)
	v.SetDefault("download-dir", defaults.DownloadDir)
	v.SetDefault("keep-files", defaults.KeepFiles)
	v.SetDefault("upload-rate-limit", defaults.UploadRateLimit)
	v.SetDefault("download-rate-limit", defaults.DownloadRateLimit)
	v.SetDefault("share-ratio-limit", defaults.ShareRatioLimit)
	v.SetDefault("cache-dir", defaults.CacheDir)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix("torrentstream")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
