// Package config loads the application configuration from a yaml file with
// optional .env and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// DataDir holds the sqlite databases and stored asset files.
	DataDir string `yaml:"data_dir"`
	// OutputRoot is where build outputs (archives, preview trees) land.
	OutputRoot string `yaml:"output_root"`
	// PluginSourceDir contains the installable plugin source directories,
	// one subdirectory per plugin.
	PluginSourceDir string `yaml:"plugin_source_dir"`
	// Compiler is the external compiler invocation.
	Compiler CompilerConfig `yaml:"compiler"`
	// FrameworkVersion is the semantic version of the running framework,
	// checked against imported package manifests.
	FrameworkVersion string `yaml:"framework_version"`
	// DefaultLanguage names the language-scoped content directory.
	DefaultLanguage string `yaml:"default_language"`
	// BuildRecordLifespan controls how long build-attempt records and their
	// outputs are kept before the sweeper removes them.
	BuildRecordLifespan time.Duration `yaml:"build_record_lifespan"`
}

// CompilerConfig configures the external static-site compiler subprocess.
type CompilerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Default returns a Config populated with defaults; Load applies these before
// reading the file.
func Default() *Config {
	return &Config{
		DataDir:             "./data",
		OutputRoot:          "./output",
		PluginSourceDir:     "./plugins",
		Compiler:            CompilerConfig{Command: "adapt", Args: []string{"build"}},
		FrameworkVersion:    "5.0.0",
		DefaultLanguage:     "en",
		BuildRecordLifespan: 7 * 24 * time.Hour,
	}
}

// Load reads the configuration file at path, merging defaults, .env files and
// COURSEFORGE_* environment overrides. A missing file is not an error; the
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	// Existing process env wins over .env contents.
	_ = godotenv.Load(".env", ".env.local")

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env + defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COURSEFORGE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("COURSEFORGE_OUTPUT_ROOT"); v != "" {
		c.OutputRoot = v
	}
	if v := os.Getenv("COURSEFORGE_PLUGIN_SOURCE_DIR"); v != "" {
		c.PluginSourceDir = v
	}
	if v := os.Getenv("COURSEFORGE_COMPILER"); v != "" {
		c.Compiler.Command = v
	}
	if v := os.Getenv("COURSEFORGE_FRAMEWORK_VERSION"); v != "" {
		c.FrameworkVersion = v
	}
	if v := os.Getenv("COURSEFORGE_DEFAULT_LANGUAGE"); v != "" {
		c.DefaultLanguage = v
	}
	if v := os.Getenv("COURSEFORGE_BUILD_RECORD_LIFESPAN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.BuildRecordLifespan = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			c.BuildRecordLifespan = time.Duration(secs) * time.Second
		}
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Compiler.Command == "" {
		return fmt.Errorf("compiler command must not be empty")
	}
	if c.FrameworkVersion == "" {
		return fmt.Errorf("framework_version must not be empty")
	}
	if c.BuildRecordLifespan <= 0 {
		return fmt.Errorf("build_record_lifespan must be positive, got %s", c.BuildRecordLifespan)
	}
	if _, err := language.Parse(c.DefaultLanguage); err != nil {
		return fmt.Errorf("default_language %q is not a valid language tag: %w", c.DefaultLanguage, err)
	}
	return nil
}

// DatabasePath returns the sqlite database file under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "courseforge.db")
}

// AssetDir returns the directory holding stored asset bytes.
func (c *Config) AssetDir() string {
	return filepath.Join(c.DataDir, "assets")
}
