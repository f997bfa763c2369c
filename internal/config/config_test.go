package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.TorrentFileIndex)
	assert.True(t, cfg.KeepFiles)
	assert.Equal(t, 2.0, cfg.ShareRatioLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("TORRENTSTREAM_KEEP_FILES", "false")
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.False(t, cfg.KeepFiles)
}

func TestValidateRejectsEmptyDownloadDir(t *testing.T) {
	cfg := Default()
	cfg.DownloadDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())
}
