package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./input", config.Input.Root)
	assert.Equal(t, ".rdy", config.Input.MarkerExt)
	assert.Equal(t, ".zip", config.Input.ArchiveExt)
	assert.Equal(t, 500*time.Millisecond, config.Input.Debounce)
	assert.Equal(t, 60*time.Second, config.Input.RescanInterval)
	assert.Equal(t, 8, config.Input.BatchSize)
	assert.Equal(t, 256, config.Input.QueueCapacity)

	assert.Equal(t, "./output", config.Output.Root)
	assert.Equal(t, ".pdf", config.Output.Extension)
	assert.True(t, config.Output.Sidecar)

	assert.Equal(t, 4, config.Render.MaxConcurrent)
	assert.True(t, config.Render.ReuseBuffers)
	assert.Greater(t, config.Render.Workers, 0)

	assert.Equal(t, "20", config.Templates.DefaultType)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadOverrides(t *testing.T) {
	resetViper(t)

	viper.Set("input.root", "/srv/fakturo/in")
	viper.Set("input.marker_ext", ".ok")
	viper.Set("input.batch_size", 16)
	viper.Set("render.max_concurrent", 2)
	viper.Set("output.sidecar", false)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/fakturo/in", config.Input.Root)
	assert.Equal(t, ".ok", config.Input.MarkerExt)
	assert.Equal(t, 16, config.Input.BatchSize)
	assert.Equal(t, 2, config.Render.MaxConcurrent)
	assert.False(t, config.Output.Sidecar)
}

func TestValidationRejectsTraversal(t *testing.T) {
	resetViper(t)

	viper.Set("output.root", "../../../etc")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
}

func TestValidationRejectsMatchingExtensions(t *testing.T) {
	resetViper(t)

	viper.Set("input.marker_ext", ".zip")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidationRejectsOutputInsideInput(t *testing.T) {
	resetViper(t)

	viper.Set("input.root", "./data")
	viper.Set("output.root", "./data/out")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside the watched input root")
}

func TestValidationRejectsOversizedBatch(t *testing.T) {
	resetViper(t)

	viper.Set("input.batch_size", 100)
	viper.Set("input.queue_capacity", 10)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds queue_capacity")
}

func TestValidationRejectsUnknownLogFormat(t *testing.T) {
	resetViper(t)

	viper.Set("logging.format", "xml")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

// Config round-trips through YAML, so an operator can dump the effective
// configuration and feed it back in.
func TestConfigYAMLRoundTrip(t *testing.T) {
	resetViper(t)

	config, err := Load()
	require.NoError(t, err)

	data, err := yaml.Marshal(config)
	require.NoError(t, err)

	var restored Config
	require.NoError(t, yaml.Unmarshal(data, &restored))

	assert.Equal(t, config.Input.Root, restored.Input.Root)
	assert.Equal(t, config.Render.MaxConcurrent, restored.Render.MaxConcurrent)
	assert.Equal(t, config.Templates.DefaultType, restored.Templates.DefaultType)
}
