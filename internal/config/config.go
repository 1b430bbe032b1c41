package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel defines the minimum severity for engine logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Defaults match the original 480x800 e-ink target.
const (
	DefaultDisplayWidth    = 480
	DefaultDisplayHeight   = 800
	DefaultTransferTimeout = 10 * time.Second
	DefaultDeviceName      = "CrossPoint Reader"
)

// Config is the top-level configuration structure for the transfer engine.
type Config struct {
	Device  DeviceConfig  `toml:"device"`
	Display DisplayConfig `toml:"display"`
	Link    LinkConfig    `toml:"link"`
	Logging LoggingConfig `toml:"logging"`
}

// DeviceConfig holds device identity settings.
type DeviceConfig struct {
	// Name is advertised to the companion app by the transport layer.
	Name string `toml:"name"`
}

// DisplayConfig holds the target display geometry. The page buffer
// capacity is derived from it, never configured directly.
type DisplayConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// LinkConfig holds transfer-link tuning.
type LinkConfig struct {
	// TransferTimeout bounds how long a list or page transfer may sit
	// without an advancing inbound frame before it is treated as a lost
	// connection. Parsed from a duration string, e.g. "10s".
	TransferTimeout string `toml:"transfer_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	LogLevel LogLevel `toml:"log_level"`
	// Console selects human-readable console output instead of JSON.
	Console bool `toml:"console"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Device:  DeviceConfig{Name: DefaultDeviceName},
		Display: DisplayConfig{Width: DefaultDisplayWidth, Height: DefaultDisplayHeight},
		Link:    LinkConfig{TransferTimeout: DefaultTransferTimeout.String()},
		Logging: LoggingConfig{LogLevel: LogLevelInfo, Console: false},
	}
}

// Load reads a TOML config file, applying defaults for any field the file
// leaves unset, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display geometry %dx%d is not positive", c.Display.Width, c.Display.Height)
	}
	if _, err := c.ParsedTransferTimeout(); err != nil {
		return err
	}
	switch c.Logging.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.LogLevel)
	}
	return nil
}

// ParsedTransferTimeout parses Link.TransferTimeout. A zero or negative
// duration is rejected; a silent peer must not hang the session forever.
func (c *Config) ParsedTransferTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Link.TransferTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse transfer_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("transfer_timeout %s is not positive", d)
	}
	return d, nil
}

// PageCapacity returns the page buffer size in bytes for the configured
// display: a 2-bit-per-pixel packed format, ((w*h+7)/8)*2.
func (c *Config) PageCapacity() int {
	return ((c.Display.Width*c.Display.Height + 7) / 8) * 2
}
