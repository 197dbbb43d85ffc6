package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `mapstructure:"bind_address"`
	// SerialPort is the path to the module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `mapstructure:"serial_port"`
	// BaudRate is the UART speed of the AT firmware (e.g. 115200)
	BaudRate int `mapstructure:"baud_rate"`
	// ReadTimeout bounds a single read from the serial port
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// PollInterval is the pause between checks while waiting for a reply token
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// AllowedOrigins restricts CORS; empty allows every origin
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Log    LogConfig   `mapstructure:"log"`
	WiFi   WiFiConfig  `mapstructure:"wifi"`
	Frames FrameConfig `mapstructure:"frames"`
	MQTT   MQTTConfig  `mapstructure:"mqtt"`
}

// LogConfig selects level, encoding and destination of the log output
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Output is "stdout", "stderr" or a file path rotated by lumberjack
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// WiFiConfig describes the bring-up sequence run at startup
type WiFiConfig struct {
	Reset     bool   `mapstructure:"reset"`
	Mode      int    `mapstructure:"mode"`
	SSID      string `mapstructure:"ssid"`
	Password  string `mapstructure:"password"`
	Multiplex bool   `mapstructure:"multiplex"`
}

// FrameConfig controls the background +IPD poller
type FrameConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Wait    time.Duration `mapstructure:"wait"`
}

// MQTTConfig configures the optional frame bridge. An empty Broker
// disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EnvPrefix is prepended to every environment variable, e.g.
// ESPGW_SERIAL_PORT or ESPGW_LOG_LEVEL.
const EnvPrefix = "ESPGW"

// ConfigOption is a function that modifies the configuration source
type ConfigOption func(*viper.Viper) error

// LoadConfig creates a new config by applying the given options in order
// and decoding the result
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	v := viper.New()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(v *viper.Viper) error {
		v.SetDefault("bind_address", "0.0.0.0:8080")
		v.SetDefault("serial_port", "/dev/ttyUSB0")
		v.SetDefault("baud_rate", 115200)
		v.SetDefault("read_timeout", 10*time.Millisecond)
		v.SetDefault("poll_interval", time.Millisecond)
		v.SetDefault("allowed_origins", []string{})

		v.SetDefault("log.level", "info")
		v.SetDefault("log.format", "json")
		v.SetDefault("log.output", "stderr")
		v.SetDefault("log.max_size", 10)
		v.SetDefault("log.max_backups", 3)
		v.SetDefault("log.max_age", 28)
		v.SetDefault("log.compress", true)

		v.SetDefault("wifi.reset", false)
		v.SetDefault("wifi.mode", 1)
		v.SetDefault("wifi.ssid", "")
		v.SetDefault("wifi.password", "")
		v.SetDefault("wifi.multiplex", false)

		v.SetDefault("frames.enabled", true)
		v.SetDefault("frames.wait", 100*time.Millisecond)

		v.SetDefault("mqtt.broker", "")
		v.SetDefault("mqtt.topic", "espgw/frames")
		v.SetDefault("mqtt.client_id", "espgw")
		v.SetDefault("mqtt.username", "")
		v.SetDefault("mqtt.password", "")
		return nil
	}
}

// WithFile merges a YAML, TOML or JSON config file. An empty path is a
// no-op.
func WithFile(path string) ConfigOption {
	return func(v *viper.Viper) error {
		if path == "" {
			return nil
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(v *viper.Viper) error {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		return nil
	}
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"bind-address":  "bind_address",
	"serial-port":   "serial_port",
	"baud-rate":     "baud_rate",
	"read-timeout":  "read_timeout",
	"poll-interval": "poll_interval",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-output":    "log.output",
	"wifi-reset":    "wifi.reset",
	"wifi-mode":     "wifi.mode",
	"wifi-ssid":     "wifi.ssid",
	"wifi-password": "wifi.password",
	"multiplex":     "wifi.multiplex",
	"frame-wait":    "frames.wait",
	"mqtt-broker":   "mqtt.broker",
	"mqtt-topic":    "mqtt.topic",
}

// RegisterFlags declares the command-line flags understood by WithFlags
func RegisterFlags(fSet *pflag.FlagSet) {
	fSet.String("config", "", "Path to a config file (yaml, toml or json)")
	fSet.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	fSet.String("serial-port", "/dev/ttyUSB0", "Serial port connected to the module")
	fSet.Int("baud-rate", 115200, "Baud rate for serial communication")
	fSet.Duration("read-timeout", 10*time.Millisecond, "Timeout of a single serial port read")
	fSet.Duration("poll-interval", time.Millisecond, "Pause between reply checks")
	fSet.String("log-level", "info", "Log level (debug, info, warn, error)")
	fSet.String("log-format", "json", "Log format (json, console)")
	fSet.String("log-output", "stderr", "Log output (stdout, stderr or a file path)")
	fSet.Bool("wifi-reset", false, "Reset the module at startup")
	fSet.Int("wifi-mode", 1, "WiFi mode (1 station, 2 access point, 3 both)")
	fSet.String("wifi-ssid", "", "Access point to join at startup")
	fSet.String("wifi-password", "", "Password of the access point")
	fSet.Bool("multiplex", false, "Enable multiple connections at startup")
	fSet.Duration("frame-wait", 100*time.Millisecond, "Wait before each inbound frame poll")
	fSet.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	fSet.String("mqtt-topic", "espgw/frames", "MQTT topic prefix for inbound frames")
}

// WithFlags loads configuration from command-line flags. Only flags set
// explicitly override earlier sources.
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(v *viper.Viper) error {
		var err error
		fSet.Visit(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok || err != nil {
				return
			}
			if bindErr := v.BindPFlag(key, f); bindErr != nil {
				err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
			}
		})
		return err
	}
}

func (c *Config) validate() error {
	if c.SerialPort == "" {
		return errors.New("serial_port is required")
	}
	if c.BindAddress == "" {
		return errors.New("bind_address is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud_rate %d", c.BaudRate)
	}
	if c.ReadTimeout < 0 {
		return errors.New("read_timeout must not be negative")
	}
	if c.WiFi.Mode < 1 || c.WiFi.Mode > 3 {
		return fmt.Errorf("invalid wifi.mode %d, expected 1, 2 or 3", c.WiFi.Mode)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	if c.Frames.Wait < 0 {
		return errors.New("frames.wait must not be negative")
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required when mqtt.broker is set")
	}
	return nil
}
