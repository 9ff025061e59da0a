package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Queue   string        `mapstructure:"queue"`
	Threads int           `mapstructure:"threads"`
	Enabled bool          `mapstructure:"enabled"`
	Delay   time.Duration `mapstructure:"delay"`
	Nested  struct {
		Factor int `mapstructure:"factor"`
	} `mapstructure:"nested"`
}

func (c *testConfig) Validate() error {
	if c.Queue == "" {
		return errors.New("A queue is required")
	}
	return nil
}

func TestUnmarshalConfigConvertsStrings(t *testing.T) {
	v := viper.New()
	v.Set("queue", "oph_tasks")
	v.Set("threads", "4")
	v.Set("enabled", "yes")
	v.Set("delay", "5s")
	v.Set("nested.factor", "2")

	config := &testConfig{}
	require.NoError(t, UnmarshalConfig(v, config))
	assert.Equal(t, "oph_tasks", config.Queue)
	assert.Equal(t, 4, config.Threads)
	assert.True(t, config.Enabled)
	assert.Equal(t, 5*time.Second, config.Delay)
	assert.Equal(t, 2, config.Nested.Factor)
}

func TestLoadConfigWrapsErrors(t *testing.T) {
	v := viper.New()
	err := LoadConfig(v, &testConfig{})
	assert.ErrorIs(t, err, ErrConfig)

	v.Set("threads", "many")
	v.Set("queue", "oph_tasks")
	err = LoadConfig(v, &testConfig{})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestReadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.yaml"), []byte("queue: from_file\nnested:\n  factor: 3\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	v := viper.New()
	require.NoError(t, ReadConfig(v, "worker.yaml"))

	config := &testConfig{}
	require.NoError(t, LoadConfig(v, config))
	assert.Equal(t, "from_file", config.Queue)
	assert.Equal(t, 3, config.Nested.Factor)
}

func TestReadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("queue: [\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	err = ReadConfig(viper.New(), "broken.yaml")
	assert.ErrorIs(t, err, ErrConfig)
}
