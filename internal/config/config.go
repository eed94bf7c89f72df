// Package config loads the assistant configuration from a YAML file with
// environment overrides. Precedence, lowest to highest: built-in defaults,
// the config file, .env, process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full assistant configuration.
type Config struct {
	// Binary is the reasoning CLI executable, resolved from PATH when not
	// absolute.
	Binary string `yaml:"binary" env:"ATTACHE_BINARY"`
	// Model overrides the CLI's default model when set.
	Model string `yaml:"model" env:"ATTACHE_MODEL"`
	// PermissionMode is passed through to the CLI.
	PermissionMode string `yaml:"permission_mode" env:"ATTACHE_PERMISSION_MODE"`
	// WorkingDir is where invocations run. Empty means the current
	// directory.
	WorkingDir string `yaml:"working_dir" env:"ATTACHE_WORKING_DIR"`

	// DataDir holds the session store, logs, and stream recordings.
	DataDir string `yaml:"data_dir" env:"ATTACHE_DATA_DIR"`
	// Debug enables debug logging.
	Debug bool `yaml:"debug" env:"ATTACHE_DEBUG"`
	// RecordStreams writes each invocation's raw stream to DataDir.
	RecordStreams bool `yaml:"record_streams" env:"ATTACHE_RECORD_STREAMS"`

	// IdleTimeout aborts an invocation after this much event silence.
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"ATTACHE_IDLE_TIMEOUT"`
	// SoftCeiling fires the advisory long-run notice. Zero disables it.
	SoftCeiling time.Duration `yaml:"soft_ceiling" env:"ATTACHE_SOFT_CEILING"`

	// QueueDepth caps pending messages per conversation.
	QueueDepth int `yaml:"queue_depth" env:"ATTACHE_QUEUE_DEPTH"`
	// LaneTTL evicts idle conversation queues after this long.
	LaneTTL time.Duration `yaml:"lane_ttl" env:"ATTACHE_LANE_TTL"`

	// InteractiveTools are the tool names that pause for a human answer.
	InteractiveTools []string `yaml:"interactive_tools" env:"ATTACHE_INTERACTIVE_TOOLS" envSeparator:","`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := ".attache"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".attache")
	}
	return &Config{
		Binary:           "claude",
		DataDir:          dataDir,
		IdleTimeout:      5 * time.Minute,
		SoftCeiling:      2 * time.Minute,
		QueueDepth:       8,
		LaneTTL:          30 * time.Minute,
		InteractiveTools: []string{"AskUserQuestion"},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Default().DataDir, "config.yml")
}

// Load reads the config file at path (skipped when missing), applies .env,
// then applies process environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SessionStorePath is where the conversation session mapping lives.
func (c *Config) SessionStorePath() string {
	return filepath.Join(c.DataDir, "sessions.json")
}

// LogDir is where the rotating logs live.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}
