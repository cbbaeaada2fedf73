package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/fanout/internal/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "fanout")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Dispatcher)
	assert.Nil(t, cfg.Defaults.Workers)
	assert.Nil(t, cfg.Defaults.Verify)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
dispatcher = "pool"
workers = 16
retry_delay = "250us"
guard = "nested"
bwlimit = "100M"
verify = true
strict = false
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Dispatcher)
	assert.Equal(t, "pool", *cfg.Defaults.Dispatcher)

	require.NotNil(t, cfg.Defaults.Workers)
	assert.Equal(t, 16, *cfg.Defaults.Workers)

	require.NotNil(t, cfg.Defaults.RetryDelay)
	assert.Equal(t, "250us", *cfg.Defaults.RetryDelay)

	require.NotNil(t, cfg.Defaults.Guard)
	assert.Equal(t, "nested", *cfg.Defaults.Guard)

	require.NotNil(t, cfg.Defaults.BWLimit)
	assert.Equal(t, "100M", *cfg.Defaults.BWLimit)

	require.NotNil(t, cfg.Defaults.Verify)
	assert.True(t, *cfg.Defaults.Verify)

	require.NotNil(t, cfg.Defaults.Strict)
	assert.False(t, *cfg.Defaults.Strict)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
workers = 4
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Workers)
	assert.Equal(t, 4, *cfg.Defaults.Workers)
	assert.Nil(t, cfg.Defaults.Dispatcher)
	assert.Nil(t, cfg.Defaults.BWLimit)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, "invalid [[[")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_UnknownKey(t *testing.T) {
	writeConfig(t, `
[defaults]
threads = 8
`)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "negative workers", content: "[defaults]\nworkers = -1\n"},
		{name: "bad delay", content: "[defaults]\nretry_delay = \"soon\"\n"},
		{name: "zero delay", content: "[defaults]\nretry_delay = \"0s\"\n"},
		{name: "bad bwlimit", content: "[defaults]\nbwlimit = \"fast\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.content)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/fanout/config.toml", config.Path())
}

func TestParseDelay(t *testing.T) {
	d, err := config.ParseDelay("100us")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Microsecond, d)

	d, err = config.ParseDelay(" 2ms ")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, d)

	_, err = config.ParseDelay("-1ms")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"100", 100},
		{"100B", 100},
		{"100b", 100},
		{"100K", 102400},
		{"100k", 102400},
		{"1M", 1048576},
		{"1G", 1073741824},
		{"1T", 1099511627776},
		{"1.5G", 1610612736},
		{"0.5M", 524288},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := config.ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSizeErrors(t *testing.T) {
	for _, input := range []string{"", "abc", "K", "-5", "-1M", "1.2.3G"} {
		t.Run(input, func(t *testing.T) {
			_, err := config.ParseSize(input)
			assert.Error(t, err)
		})
	}
}
