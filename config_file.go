package varnish

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration decoded from a string such as "1.5s".
// "none", "off" and "0" disable the timeout.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	switch s := strings.TrimSpace(string(text)); strings.ToLower(s) {
	case "none", "off", "0":
		d.Duration = NoTimeout
		return nil
	default:
		var err error
		d.Duration, err = time.ParseDuration(s)
		return err
	}
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration < 0 {
		return []byte("none"), nil
	}
	return []byte(d.Duration.String()), nil
}

// FileConfig is the on-disk form of Config.
//
// TOML:
//
//	server = "127.0.0.1:6082"
//	timeout = "2s"
//	keep_alive = true
//	secret_file = "/etc/varnish/secret"
//
// YAML uses the same keys.
type FileConfig struct {
	// Server is "host" or "host:port". Takes precedence over Host and Port.
	Server string `toml:"server" yaml:"server"`
	Host   string `toml:"host" yaml:"host"`
	Port   int    `toml:"port" yaml:"port"`

	// Timeout defaults to one second when absent.
	Timeout *Duration `toml:"timeout" yaml:"timeout"`

	KeepAlive         bool     `toml:"keep_alive" yaml:"keep_alive"`
	KeepAliveInterval Duration `toml:"keep_alive_interval" yaml:"keep_alive_interval"`

	ReadBanner bool `toml:"read_banner" yaml:"read_banner"`

	// SecretFile is the path of the shared secret file (varnishd -S).
	SecretFile string `toml:"secret_file" yaml:"secret_file"`
}

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) configuration file.
// Environment variables in the path and in string values are expanded.
func LoadConfig(path string) (Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("varnish: reading config: %w", err)
	}

	var fc FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&fc); err != nil {
			return Config{}, fmt.Errorf("varnish: failed to parse config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("varnish: failed to parse config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("varnish: unsupported config format %q", ext)
	}

	return fc.ToConfig()
}

// ToConfig converts the file form into a Config, reading the secret file.
func (fc FileConfig) ToConfig() (Config, error) {
	config := Config{
		Host:              os.ExpandEnv(fc.Host),
		Port:              fc.Port,
		KeepAlive:         fc.KeepAlive,
		KeepAliveInterval: fc.KeepAliveInterval.Duration,
		ReadBanner:        fc.ReadBanner,
	}

	if fc.Server != "" {
		host, port, err := ParseServer(os.ExpandEnv(fc.Server))
		if err != nil {
			return Config{}, err
		}
		config.Host = host
		config.Port = port
	}

	if fc.Timeout != nil {
		config.Timeout = fc.Timeout.Duration
		if config.Timeout == 0 {
			config.Timeout = NoTimeout
		}
	}

	if fc.SecretFile != "" {
		secret, err := os.ReadFile(os.ExpandEnv(fc.SecretFile))
		if err != nil {
			return Config{}, fmt.Errorf("varnish: reading secret: %w", err)
		}
		config.Secret = secret
	}

	return config, nil
}
