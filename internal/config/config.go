// Package config loads the mvd configuration file.
// Settings live in a YAML file (default ~/.config/mvd/config.yaml);
// a handful of environment variables override it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mizarwork/mvd/internal/paths"
	"github.com/mizarwork/mvd/internal/pipeline"
	"github.com/mizarwork/mvd/internal/procrun"
)

// Environment overrides.
const (
	EnvExeDir   = "MVD_EXE_DIR"
	EnvShareDir = "MVD_SHARE_DIR"
	EnvWorkDir  = "MVD_WORK_DIR"
	EnvAddr     = "MVD_ADDR"
)

const defaultAddr = "127.0.0.1:8377"

// Config is the top-level configuration.
type Config struct {
	Paths          PathsConfig                               `yaml:"paths"`
	Server         ServerConfig                              `yaml:"server"`
	Workspace      WorkspaceConfig                           `yaml:"workspace"`
	Session        SessionConfig                             `yaml:"session"`
	OutputEncoding string                                    `yaml:"output_encoding,omitempty"`
	LogFile        string                                    `yaml:"log_file,omitempty"`
	Pipelines      map[pipeline.Workflow]*pipeline.Definition `yaml:"pipelines,omitempty"`

	path string
}

// PathsConfig holds the raw tool roots; empty values fall back to
// defaults under the installation base.
type PathsConfig struct {
	ExeDir   string `yaml:"exe_dir"`
	ShareDir string `yaml:"share_dir"`
	WorkDir  string `yaml:"work_dir"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// WorkspaceConfig tunes workspace clearing.
type WorkspaceConfig struct {
	DeleteRetries int      `yaml:"delete_retries"`
	RetryInterval Duration `yaml:"retry_interval"`
}

// SessionConfig configures the session job store. An empty StateFile
// keeps jobs in memory.
type SessionConfig struct {
	StateFile string   `yaml:"state_file,omitempty"`
	TTL       Duration `yaml:"ttl"`
}

// Duration is a wrapper around time.Duration that implements YAML unmarshaling
// from human-readable strings like "1s", "24h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: defaultAddr},
		Workspace: WorkspaceConfig{
			DeleteRetries: 3,
			RetryInterval: Duration{time.Second},
		},
		Session: SessionConfig{TTL: Duration{24 * time.Hour}},
	}
}

// DefaultPath returns ~/.config/mvd/config.yaml (or the platform
// equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "mvd", "config.yaml"), nil
}

// Load reads the file at path over the defaults and applies environment
// overrides. A missing file is not an error. Empty environment variables
// are ignored.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvExeDir); ok && v != "" {
		c.Paths.ExeDir = v
	}
	if v, ok := lookup(EnvShareDir); ok && v != "" {
		c.Paths.ShareDir = v
	}
	if v, ok := lookup(EnvWorkDir); ok && v != "" {
		c.Paths.WorkDir = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Save writes the config to its path.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no file path")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Configured returns the raw path settings for the resolver.
func (c *Config) Configured() paths.Configured {
	return paths.Configured{
		ExeDir:   c.Paths.ExeDir,
		ShareDir: c.Paths.ShareDir,
		WorkDir:  c.Paths.WorkDir,
	}
}

// Definitions returns the pipeline definitions with overrides applied.
func (c *Config) Definitions() map[pipeline.Workflow]*pipeline.Definition {
	return pipeline.Merge(c.Pipelines)
}

// ValidationError describes a single configuration problem.
type ValidationError = pipeline.ValidationError

// Validate checks the config and returns all problems found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "address is required"})
	} else if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.addr",
			Message: fmt.Sprintf("invalid address %q: %v", c.Server.Addr, err),
		})
	}

	if c.Workspace.DeleteRetries < 1 {
		errs = append(errs, ValidationError{
			Field:   "workspace.delete_retries",
			Message: "must be at least 1",
		})
	}
	if c.Workspace.RetryInterval.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "workspace.retry_interval",
			Message: "must not be negative",
		})
	}
	if c.Session.TTL.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.ttl",
			Message: "must not be negative",
		})
	}

	if _, err := procrun.ResolveEncoding(c.OutputEncoding); err != nil {
		errs = append(errs, ValidationError{
			Field:   "output_encoding",
			Message: err.Error(),
		})
	}

	if len(c.Pipelines) > 0 {
		errs = append(errs, pipeline.Validate(c.Pipelines)...)
	}

	return errs
}
