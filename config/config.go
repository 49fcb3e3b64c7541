// Package config loads debug server settings. Values are layered in this
// order, later ones winning: built-in defaults, an optional ini file,
// DEBUGSERVER_* environment variables, then command-line flags the user set.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 9000
	DefaultBufferSize  = 4096
	DefaultGracePeriod = time.Second
	DefaultLogLevel    = "warn"
	DefaultResolveTTL  = 5 * time.Minute

	envPrefix = "DEBUGSERVER_"
)

var (
	ErrInvalidPort        = errors.New("invalid port")
	ErrInvalidBufferSize  = errors.New("invalid buffer size")
	ErrInvalidGracePeriod = errors.New("invalid grace period")
)

// ServerConf is the [server] section.
type ServerConf struct {
	Host        string        `ini:"host"`
	Port        int           `ini:"port"`
	BufferSize  int           `ini:"buffer_size"`
	GracePeriod time.Duration `ini:"grace_period"`
	Resolve     bool          `ini:"resolve"`
	ResolveTTL  time.Duration `ini:"resolve_ttl"`
}

// LogConf is the [log] section. An empty Dir logs to stderr only.
type LogConf struct {
	Level string `ini:"level"`
	Dir   string `ini:"dir"`
}

// Config holds every setting of the debug server.
type Config struct {
	Server ServerConf `ini:"server"`
	Log    LogConf    `ini:"log"`
}

// Default returns the built-in settings: listen on 0.0.0.0:9000, 4096-byte
// reads, one second shutdown grace period, warn-level logging to stderr so
// diagnostics stay out of the way of the operator console.
func Default() *Config {
	return &Config{
		Server: ServerConf{
			Host:        DefaultHost,
			Port:        DefaultPort,
			BufferSize:  DefaultBufferSize,
			GracePeriod: DefaultGracePeriod,
			ResolveTTL:  DefaultResolveTTL,
		},
		Log: LogConf{
			Level: DefaultLogLevel,
		},
	}
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate checks the settings.
//
// Returns:
//   - nil, or an error wrapping one of the ErrInvalid* sentinels
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	if c.Server.BufferSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBufferSize, c.Server.BufferSize)
	}

	if c.Server.GracePeriod < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidGracePeriod, c.Server.GracePeriod)
	}

	return nil
}

// LoadIni overlays the keys present in an ini file onto cfg. Keys missing
// from the file keep their current values.
//
// Parameters:
//   - cfg: The config to update
//   - source: A file name, []byte or io.Reader accepted by ini.Load
//
// Returns:
//   - An error if the source cannot be read or a value cannot be parsed
func LoadIni(cfg *Config, source any) error {
	f, err := ini.Load(source)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := f.MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map config: %w", err)
	}

	return nil
}

// ApplyEnv overrides cfg from DEBUGSERVER_HOST, DEBUGSERVER_PORT,
// DEBUGSERVER_LOG_LEVEL and DEBUGSERVER_LOG_DIR. Unset or empty variables
// are ignored, as are ports that are not integers.
func ApplyEnv(cfg *Config) {
	overrideString(&cfg.Server.Host, envPrefix+"HOST")
	overrideInt(&cfg.Server.Port, envPrefix+"PORT")
	overrideString(&cfg.Log.Level, envPrefix+"LOG_LEVEL")
	overrideString(&cfg.Log.Dir, envPrefix+"LOG_DIR")
}

func overrideString(target *string, name string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

func overrideInt(target *int, name string) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// Flags are the command-line flags of the debug server.
type Flags struct {
	fs         *pflag.FlagSet
	configPath string
	host       string
	port       int
	logLevel   string
	logDir     string
	resolve    bool
}

// RegisterFlags adds the server flags to fs: -p/--port, -H/--host,
// -c/--config, --log-level, --log-dir and --resolve.
//
// Parameters:
//   - fs: The flag set to register on
//
// Returns:
//   - Flags to apply after parsing
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}

	fs.IntVarP(&f.port, "port", "p", DefaultPort, "port to listen on")
	fs.StringVarP(&f.host, "host", "H", DefaultHost, "address to listen on")
	fs.StringVarP(&f.configPath, "config", "c", "", "path to an ini config file")
	fs.StringVar(&f.logLevel, "log-level", DefaultLogLevel, "diagnostic log level (debug, info, warn, error)")
	fs.StringVar(&f.logDir, "log-dir", "", "directory for daily diagnostic log files")
	fs.BoolVar(&f.resolve, "resolve", false, "show reverse DNS names of connecting peers")

	return f
}

// ConfigPath returns the --config value.
func (f *Flags) ConfigPath() string {
	return f.configPath
}

// Apply copies the flags the user set explicitly onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.fs.Changed("port") {
		cfg.Server.Port = f.port
	}
	if f.fs.Changed("host") {
		cfg.Server.Host = f.host
	}
	if f.fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if f.fs.Changed("log-dir") {
		cfg.Log.Dir = f.logDir
	}
	if f.fs.Changed("resolve") {
		cfg.Server.Resolve = f.resolve
	}
}

// Load builds the effective config from defaults, the --config file (if
// given), the environment and the parsed flags, then validates it.
//
// Parameters:
//   - flags: Parsed command-line flags
//
// Returns:
//   - The effective config, or an error from loading or validation
func Load(flags *Flags) (*Config, error) {
	cfg := Default()

	if path := flags.ConfigPath(); path != "" {
		if err := LoadIni(cfg, path); err != nil {
			return nil, err
		}
	}

	ApplyEnv(cfg)
	flags.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
