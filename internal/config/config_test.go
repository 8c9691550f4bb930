package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("CATALOG_DIR", "")
	t.Setenv("HLS_OUTPUT_DIR", "")
	t.Setenv("DISABLE_HLS", "")
	t.Setenv("DISABLE_ICECAST", "")
	t.Setenv("DISABLE_STATUS", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, "catalog", cfg.CatalogDir)
	require.Equal(t, "hls", cfg.HLSOutDir)
	require.False(t, cfg.DisableHLS)
	require.False(t, cfg.DisableIcecast)
	require.False(t, cfg.DisableStatus)
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9090")
	t.Setenv("DISABLE_ICECAST", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress)
	require.True(t, cfg.DisableIcecast)
}

func TestGetenvBoolTreatsNonBooleanNonEmptyAsSet(t *testing.T) {
	t.Setenv("DISABLE_HLS", "yep")
	require.True(t, getenvBool("DISABLE_HLS"))
}
