package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadPartialFileKeepsDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	partial := "logLevel: debug\ndecay:\n  base: 0.95\n"
	require.NoError(t, os.WriteFile(Path(dir), []byte(partial), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 0.95, cfg.Decay.Base)
	require.Equal(t, 0.1, cfg.Decay.ArchiveBelow)
	require.Equal(t, 1000, cfg.Analysis.Threshold)
	require.NotEmpty(t, cfg.Watch.Ignore)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("logLevel: [unclosed"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Analysis.Threshold = 250

	require.NoError(t, Save(dir, cfg))
	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestDirPrecedence(t *testing.T) {
	t.Setenv(EnvDir, "/from/env")

	dir, err := Dir("/from/flag")
	require.NoError(t, err)
	require.Equal(t, "/from/flag", dir)

	dir, err = Dir("")
	require.NoError(t, err)
	require.Equal(t, "/from/env", dir)
}
