package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "caster.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	d := Default()
	assert.Equal(t, 2101, d.NTRIP.Port)
	assert.Equal(t, "0.0.0.0", d.Network.Host)
	assert.Equal(t, 5000, d.Network.MaxConnections)
	assert.Equal(t, 60, d.DataForwarding.RingBufferSize)
	assert.Equal(t, 30, d.RTCM.ParseDurationSec)
	assert.Equal(t, 5, d.RTCM.ParseIntervalSec)
}

func TestLoadFillsOmittedKeysFromDefaults(t *testing.T) {
	path := writeTempConfig(t, `{"ntrip": {"port": 2201}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2201, cfg.NTRIP.Port)
	assert.Equal(t, "0.0.0.0", cfg.Network.Host) // untouched key keeps its default
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := writeTempConfig(t, `{not-json`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Default()
	cfg.NTRIP.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyHost(t *testing.T) {
	cfg := Default()
	cfg.Network.Host = ""
	assert.Error(t, cfg.Validate())
}

func TestApplyEnvOverridesSetsRecognizedKeys(t *testing.T) {
	t.Setenv("NTRIPCASTER_NTRIP_PORT", "2102")
	t.Setenv("NTRIPCASTER_CASTER_COUNTRY", "GBR")

	cfg := Default()
	ApplyEnvOverrides(&cfg)

	assert.Equal(t, 2102, cfg.NTRIP.Port)
	assert.Equal(t, "GBR", cfg.Caster.Country)
}

func TestApplyEnvOverridesIgnoresUnparseableValue(t *testing.T) {
	t.Setenv("NTRIPCASTER_NTRIP_PORT", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(&cfg)

	assert.Equal(t, 2101, cfg.NTRIP.Port) // left at its default, not zeroed
}
