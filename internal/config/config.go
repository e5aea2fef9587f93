// Package config loads the expectctl configuration: engine defaults that
// get threaded into every session at construction, plus serve-mode
// settings. There is no hidden global state; callers pass the loaded
// values down explicitly.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/expectctl/internal/expect"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "1.5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	// Engine defaults.
	Timeout      Duration `yaml:"timeout"`
	PollInterval Duration `yaml:"poll_interval"`
	ReadChunk    int      `yaml:"read_chunk"`
	LineSep      string   `yaml:"line_sep"`
	StripControl bool     `yaml:"strip_control"`

	// Serve mode.
	Port int `yaml:"port"`

	// Transcript store; empty disables recording.
	HistoryPath string `yaml:"history_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Timeout:      Duration(30 * time.Second),
		PollInterval: Duration(100 * time.Millisecond),
		ReadChunk:    2000,
		LineSep:      "\n",
		Port:         8699,
	}
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}
	return cfg, nil
}

// SessionOptions converts the engine defaults to expect.Options.
func (c Config) SessionOptions() expect.Options {
	return expect.Options{
		Timeout:      time.Duration(c.Timeout),
		PollInterval: time.Duration(c.PollInterval),
		ReadChunk:    c.ReadChunk,
		LineSep:      c.LineSep,
		StripControl: c.StripControl,
	}
}
