// Package config loads the gojvm configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// jmodGlob is where distribution JDKs usually keep java.base.
const jmodGlob = "/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod"

// Config holds all gojvm configuration.
type Config struct {
	// JavaBaseJmod is the java.base.jmod library classes are read from.
	// Empty means library classes come only from the built-in natives.
	JavaBaseJmod string `yaml:"java_base_jmod"`

	// ClassPath lists extra directories searched for user classes.
	ClassPath []string `yaml:"class_path"`

	Logging LoggingConfig `yaml:"logging"`
	Reload  ReloadConfig  `yaml:"reload"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// ReloadConfig configures invokedynamic emulation.
type ReloadConfig struct {
	// CallSiteCache keeps linked call sites until the next reload.
	CallSiteCache bool `yaml:"call_site_cache"`
	// ApplyExecutors binds executor classes (Foo$$E1.class, ...) found next
	// to the main class before running it.
	ApplyExecutors bool `yaml:"apply_executors"`
}

// MetricsConfig configures the prometheus collectors.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Reload: ReloadConfig{
			CallSiteCache:  true,
			ApplyExecutors: true,
		},
	}
}

// Load reads a YAML configuration file on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides locates java.base.jmod: JAVA_BASE_JMOD wins over the
// file, then JAVA_HOME and the distribution glob fill in an empty setting.
func (c *Config) applyEnvOverrides() {
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		c.JavaBaseJmod = env
	}
	if c.JavaBaseJmod == "" {
		if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
			p := filepath.Join(javaHome, "jmods", "java.base.jmod")
			if _, err := os.Stat(p); err == nil {
				c.JavaBaseJmod = p
			}
		}
	}
	if c.JavaBaseJmod == "" {
		if matches, _ := filepath.Glob(jmodGlob); len(matches) > 0 {
			c.JavaBaseJmod = matches[0]
		}
	}

	if level := os.Getenv("GOJVM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q (valid: json, console)", c.Logging.Format)
	}
	for _, dir := range c.ClassPath {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("class path entry %s is not a directory", dir)
		}
	}
	return nil
}
