// Package config loads the jobu configuration.
//
// The configuration lives in config.yaml or config.toml in the config
// directory. Keys that are absent keep their default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"src.jobu.sh/pkg/env"
)

// Config is the jobu configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	Handoff HandoffConfig `yaml:"handoff" toml:"handoff"`
	History HistoryConfig `yaml:"history" toml:"history"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// EngineConfig configures the line-editing engine.
type EngineConfig struct {
	// Path to the engine. Overridden by $JOBU_ENGINE.
	Path string `yaml:"path" toml:"path"`
	// Arguments, with {request}, {response} and {session} placeholders. Nil
	// means the default arguments.
	Args []string `yaml:"args" toml:"args"`
	// "channel" or "file".
	ResultMode string `yaml:"result_mode" toml:"result_mode"`
	// Zero means no timeout.
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
	SetCmdGrace Duration `yaml:"setcmd_grace" toml:"setcmd_grace"`
}

// HandoffConfig configures how control is handed back and forth.
type HandoffConfig struct {
	// "status" or "none".
	Sync       string   `yaml:"sync" toml:"sync"`
	AckTimeout Duration `yaml:"ack_timeout" toml:"ack_timeout"`
	AltScreen  bool     `yaml:"alt_screen" toml:"alt_screen"`
}

// HistoryConfig configures the command history.
type HistoryConfig struct {
	// Path of the history database. Empty means the default location in the
	// data directory.
	DB string `yaml:"db" toml:"db"`
	// Import $HISTFILE (or ~/.bash_history) into the history once.
	ImportBash bool `yaml:"import_bash" toml:"import_bash"`
}

// LogConfig configures the debug log.
type LogConfig struct {
	// Empty means no log.
	File      string `yaml:"file" toml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			ResultMode:  "channel",
			SetCmdGrace: Duration(500 * time.Millisecond),
		},
		Handoff: HandoffConfig{
			Sync:       "status",
			AckTimeout: Duration(2 * time.Second),
		},
		History: HistoryConfig{ImportBash: true},
		Log:     LogConfig{MaxSizeMB: 10},
	}
}

// Names of config files, in the order they are searched.
var fileNames = []string{"config.yaml", "config.yml", "config.toml"}

// Dir returns the config directory. The resolution order is
// $JOBU_CONFIG_DIR, $XDG_CONFIG_HOME/jobu, ~/.config/jobu.
func Dir() (string, error) {
	if dir := os.Getenv(env.JOBU_CONFIG_DIR); dir != "" {
		return dir, nil
	}
	if configHome := os.Getenv(env.XDG_CONFIG_HOME); configHome != "" {
		return filepath.Join(configHome, "jobu"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find config directory: %w", err)
	}
	return filepath.Join(home, ".config", "jobu"), nil
}

// DataDir returns the directory for persistent data: $XDG_DATA_HOME/jobu or
// ~/.local/share/jobu.
func DataDir() (string, error) {
	if dataHome := os.Getenv(env.XDG_DATA_HOME); dataHome != "" {
		return filepath.Join(dataHome, "jobu"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "jobu"), nil
}

// Load loads the first config file found in dir, and applies environment
// overrides. It returns the path of the file, or an empty string if there
// was none and the defaults are used.
func Load(dir string) (*Config, string, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		cfg, err := LoadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, path, err
		}
		cfg.ApplyEnv()
		return cfg, path, nil
	}
	cfg := Default()
	cfg.ApplyEnv()
	return cfg, "", nil
}

// LoadFile loads a config file. The format is chosen by the extension: .yaml
// and .yml for YAML, .toml for TOML. Unknown keys are errors.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document decodes to io.EOF; keep the defaults.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies overrides from environment variables.
func (c *Config) ApplyEnv() {
	if engine := os.Getenv(env.JOBU_ENGINE); engine != "" {
		c.Engine.Path = engine
	}
}

// Validate checks values that have a fixed set of choices.
func (c *Config) Validate() error {
	var errs []error
	switch c.Engine.ResultMode {
	case "channel", "file":
	default:
		errs = append(errs, fmt.Errorf("engine.result_mode must be channel or file, got %q", c.Engine.ResultMode))
	}
	switch c.Handoff.Sync {
	case "status", "none":
	default:
		errs = append(errs, fmt.Errorf("handoff.sync must be status or none, got %q", c.Handoff.Sync))
	}
	if c.Engine.Timeout < 0 || c.Engine.SetCmdGrace < 0 || c.Handoff.AckTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

// HistoryDB returns the path of the history database.
func (c *Config) HistoryDB() (string, error) {
	if c.History.DB != "" {
		return c.History.DB, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "history.db"), nil
}

// Duration is a time.Duration written as a string like "500ms" in config
// files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string { return time.Duration(d).String() }
