package dommark

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level dommark configuration.
type Config struct {
	// DBPath is the SQLite file holding snapshots and event logs.
	DBPath string `yaml:"db_path"`
	// ExportDir receives exported PNG files and legend sidecars.
	ExportDir string `yaml:"export_dir"`
	// HTTPAddr, when set, serves the HTTP control API.
	HTTPAddr string `yaml:"http_addr"`

	Browser BrowserConfig `yaml:"browser"`
}

// BrowserConfig controls the Chrome attachment.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome; empty launches one.
	Remote string `yaml:"remote"`
	// Headless runs Chrome without a window. Interactive annotation wants
	// a window, so the default is headful.
	Headless bool `yaml:"headless"`
	// NavigateTimeout is a Go duration string, e.g. "30s".
	NavigateTimeout string `yaml:"navigate_timeout"`
}

// navigateTimeout parses the configured timeout, falling back to 30s.
func (c *BrowserConfig) navigateTimeout() time.Duration {
	d, err := time.ParseDuration(c.NavigateTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "dommark.db"
	}
	if c.ExportDir == "" {
		c.ExportDir = "."
	}
	if c.Browser.NavigateTimeout == "" {
		c.Browser.NavigateTimeout = "30s"
	}
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dommark: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("dommark: parse config: %w", err)
	}
	if cfg.Browser.NavigateTimeout != "" {
		if _, err := time.ParseDuration(cfg.Browser.NavigateTimeout); err != nil {
			return nil, fmt.Errorf("dommark: parse config: navigate_timeout: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}
