package tablebridge

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config selects the interpreter and how the bridge talks to it. The package
// search path is not configurable: it is fixed per platform at build time.
type Config struct {
	// Python is an explicit interpreter path. Empty means discover one.
	Python string `yaml:"python"`

	// Venv is the virtual environment whose interpreter is preferred.
	// Default: .venv
	Venv string `yaml:"venv"`

	// PythonVersionFile names the file holding the version to look up among
	// uv-managed interpreters. Default: .python-version
	PythonVersionFile string `yaml:"python_version_file"`

	// TableFormat is how tables are rebuilt in Python: polars, pandas or dict.
	// Default: polars
	TableFormat TableFormat `yaml:"table_format"`

	// LogLevel is a zap level name. Default: info
	LogLevel string `yaml:"log_level"`

	// CallTimeout bounds one invocation. Zero means no limit.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Venv:              ".venv",
		PythonVersionFile: ".python-version",
		TableFormat:       TableFormatPolars,
		LogLevel:          "info",
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if !c.TableFormat.Valid() {
		return fmt.Errorf("table_format %q must be polars, pandas or dict", c.TableFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
