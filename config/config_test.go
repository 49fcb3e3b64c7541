package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 4096, cfg.Server.BufferSize)
	assert.Equal(t, time.Second, cfg.Server.GracePeriod)
	assert.False(t, cfg.Server.Resolve)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Empty(t, cfg.Log.Dir)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "::1"
	cfg.Server.Port = 9001
	assert.Equal(t, "[::1]:9001", cfg.Addr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }, ErrInvalidPort},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, ErrInvalidPort},
		{"zero buffer", func(c *Config) { c.Server.BufferSize = 0 }, ErrInvalidBufferSize},
		{"negative grace", func(c *Config) { c.Server.GracePeriod = -time.Second }, ErrInvalidGracePeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("port zero picks a free port", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadIni(t *testing.T) {
	t.Run("overlays present keys", func(t *testing.T) {
		cfg := Default()
		data := []byte(`
[server]
host = 127.0.0.1
port = 9001
grace_period = 2s
resolve = true

[log]
level = debug
`)
		require.NoError(t, LoadIni(cfg, data))

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9001, cfg.Server.Port)
		assert.Equal(t, 2*time.Second, cfg.Server.GracePeriod)
		assert.True(t, cfg.Server.Resolve)
		assert.Equal(t, 4096, cfg.Server.BufferSize, "missing keys keep defaults")
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("reads from a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "debugserver.ini")
		require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9100\n"), 0644))

		cfg := Default()
		require.NoError(t, LoadIni(cfg, path))
		assert.Equal(t, 9100, cfg.Server.Port)
	})

	t.Run("missing file fails", func(t *testing.T) {
		err := LoadIni(Default(), filepath.Join(t.TempDir(), "none.ini"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DEBUGSERVER_HOST", "127.0.0.2")
	t.Setenv("DEBUGSERVER_PORT", "9200")
	t.Setenv("DEBUGSERVER_LOG_LEVEL", "error")
	t.Setenv("DEBUGSERVER_LOG_DIR", "")

	cfg := Default()
	ApplyEnv(cfg)

	assert.Equal(t, "127.0.0.2", cfg.Server.Host)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Empty(t, cfg.Log.Dir)

	t.Run("non-numeric port is ignored", func(t *testing.T) {
		t.Setenv("DEBUGSERVER_PORT", "http")
		cfg := Default()
		ApplyEnv(cfg)
		assert.Equal(t, 9000, cfg.Server.Port)
	})
}

func TestFlags(t *testing.T) {
	t.Run("short flags", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags := RegisterFlags(fs)
		require.NoError(t, fs.Parse([]string{"-p", "9001", "-H", "127.0.0.1"}))

		cfg := Default()
		flags.Apply(cfg)
		assert.Equal(t, "127.0.0.1:9001", cfg.Addr())
	})

	t.Run("long flags", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags := RegisterFlags(fs)
		require.NoError(t, fs.Parse([]string{"--port=9002", "--host=::", "--log-level=debug", "--resolve"}))

		cfg := Default()
		flags.Apply(cfg)
		assert.Equal(t, 9002, cfg.Server.Port)
		assert.Equal(t, "::", cfg.Server.Host)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Server.Resolve)
	})

	t.Run("unset flags leave config alone", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags := RegisterFlags(fs)
		require.NoError(t, fs.Parse(nil))

		cfg := Default()
		cfg.Server.Port = 1234
		flags.Apply(cfg)
		assert.Equal(t, 1234, cfg.Server.Port)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debugserver.ini")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nhost = 10.0.0.1\nport = 9100\n"), 0644))
	t.Setenv("DEBUGSERVER_PORT", "9200")

	t.Run("flags beat env beat file", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags := RegisterFlags(fs)
		require.NoError(t, fs.Parse([]string{"-c", path, "-p", "9300"}))

		cfg, err := Load(flags)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9300, cfg.Server.Port)
	})

	t.Run("env beats file", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags := RegisterFlags(fs)
		require.NoError(t, fs.Parse([]string{"--config", path}))

		cfg, err := Load(flags)
		require.NoError(t, err)
		assert.Equal(t, 9200, cfg.Server.Port)
	})

	t.Run("invalid result is rejected", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags := RegisterFlags(fs)
		require.NoError(t, fs.Parse([]string{"-p", "70000"}))

		_, err := Load(flags)
		assert.ErrorIs(t, err, ErrInvalidPort)
	})
}
