package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/oveye/oveye/camera"
)

func TestConfigInitWritesCaptureTemplate(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "capture.json")
	cmd := ConfigInit{Command: "capture", Format: "json", Output: dest}
	require.NoError(t, cmd.Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var root map[string]any
	require.NoError(t, json.Unmarshal(data, &root))
	assert.EqualValues(t, 640, root["width"])
	assert.EqualValues(t, 480, root["height"])
	assert.EqualValues(t, 60, root["fPS"])
	assert.EqualValues(t, 8, root["transfers"])
	assert.Contains(t, root, "output")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "watch.yaml")
	require.NoError(t, os.WriteFile(dest, []byte("width: 320\n"), 0o644))

	cmd := ConfigInit{Command: "watch", Format: "yaml", Output: dest}
	assert.Error(t, cmd.Run())

	cmd.Force = true
	require.NoError(t, cmd.Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var root map[string]any
	require.NoError(t, yaml.Unmarshal(data, &root))
	assert.EqualValues(t, 640, root["width"])
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "json", normalizeFormat("JSON"))
	assert.Equal(t, "yaml", normalizeFormat("yml"))
	assert.Equal(t, "toml", normalizeFormat("toml"))
	assert.Equal(t, "", normalizeFormat("ini"))
}

func TestLoadControlsRoutesByExtension(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "controls.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("gain: 40\nautogain: true\n"), 0o644))
	got, err := loadControls(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, uint8(40), got.Gain)
	assert.True(t, got.AutoGain)
	// Unset fields keep the hardware defaults.
	assert.Equal(t, camera.DefaultControls().Exposure, got.Exposure)

	jsonPath := filepath.Join(dir, "controls.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"exposure": 200}`), 0o644))
	got, err = loadControls(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, uint8(200), got.Exposure)

	tomlPath := filepath.Join(dir, "controls.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("brightness = 99\n"), 0o644))
	got, err = loadControls(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, uint8(99), got.Brightness)
}

func TestLoadControlsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gain: [not a number\n"), 0o644))

	_, err := loadControls(path)
	assert.Error(t, err)

	_, err = loadControls(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFmtBytes(t *testing.T) {
	assert.Equal(t, "512 B", fmtBytes(512))
	assert.Equal(t, "2.0 KiB", fmtBytes(2048))
	assert.Equal(t, "150.0 MiB", fmtBytes(150<<20))
	assert.Equal(t, "1.5 GiB", fmtBytes(3<<29))
}
