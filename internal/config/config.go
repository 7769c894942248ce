// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for meshwiz.
type Config struct {
	APIURL            string        `mapstructure:"api_url" yaml:"api_url"`
	APIToken          string        `mapstructure:"api_token" yaml:"api_token,omitempty"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DataDir           string        `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile           string        `mapstructure:"log_file" yaml:"log_file"`
	VersionLabel      string        `mapstructure:"version_label" yaml:"version_label"`
	AppLabel          string        `mapstructure:"app_label" yaml:"app_label"`
	GatewaySelector   string        `mapstructure:"gateway_selector" yaml:"gateway_selector"`
	GatewayPort       int           `mapstructure:"gateway_port" yaml:"gateway_port"`
	RollbackOnFailure bool          `mapstructure:"rollback_on_failure" yaml:"rollback_on_failure"`
	SuccessMessage    string        `mapstructure:"success_message" yaml:"success_message,omitempty"`
	FailureMessage    string        `mapstructure:"failure_message" yaml:"failure_message,omitempty"`
}

// keys lists every config key; each is bound to MESHWIZ_<KEY>.
var keys = []string{
	"api_url",
	"api_token",
	"timeout",
	"data_dir",
	"log_level",
	"log_file",
	"version_label",
	"app_label",
	"gateway_selector",
	"gateway_port",
	"rollback_on_failure",
	"success_message",
	"failure_message",
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		APIURL:          "http://localhost:20001/kiali",
		Timeout:         30 * time.Second,
		DataDir:         ".meshwiz",
		LogLevel:        "info",
		VersionLabel:    "version",
		AppLabel:        "app",
		GatewaySelector: "istio=ingressgateway",
		GatewayPort:     80,
	}
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("meshwiz")

	def := Default()
	v.SetDefault("api_url", def.APIURL)
	v.SetDefault("api_token", "")
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("version_label", def.VersionLabel)
	v.SetDefault("app_label", def.AppLabel)
	v.SetDefault("gateway_selector", def.GatewaySelector)
	v.SetDefault("gateway_port", def.GatewayPort)
	v.SetDefault("rollback_on_failure", false)
	v.SetDefault("success_message", "")
	v.SetDefault("failure_message", "")

	v.SetEnvPrefix("MESHWIZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit bindings so bool/int/duration values from the environment
	// are visible to Unmarshal.
	for _, key := range keys {
		if err := v.BindEnv(key, "MESHWIZ_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.GatewayPort <= 0 || c.GatewayPort > 65535 {
		return fmt.Errorf("gateway_port %d out of range", c.GatewayPort)
	}
	if _, err := c.GatewaySelectorLabels(); err != nil {
		return err
	}
	return nil
}

// GatewaySelectorLabels parses gateway_selector ("k=v,k2=v2") into labels.
func (c *Config) GatewaySelectorLabels() (map[string]string, error) {
	labels := map[string]string{}
	for _, pair := range strings.Split(c.GatewaySelector, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid gateway_selector entry %q", pair)
		}
		labels[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return labels, nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/meshwiz/meshwiz.yml or $XDG_CONFIG_HOME/meshwiz/meshwiz.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "meshwiz", "meshwiz.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "meshwiz", "meshwiz.yml")
}

// ProjectPath returns the project-local config path.
func ProjectPath() string {
	return "meshwiz.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return write(path, cfg)
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	return write(ProjectPath(), cfg)
}

func write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	// The file may carry an API token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
