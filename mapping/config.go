package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/effectus/fieldmap/sources"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file read by fieldctl.
type Config struct {
	Source  sources.Config `yaml:"source" json:"source"`
	Watch   WatchConfig    `yaml:"watch" json:"watch"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
	Log     LogConfig      `yaml:"log" json:"log"`
}

type WatchConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Debounce string `yaml:"debounce" json:"debounce"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// DebounceDuration parses the debounce, zero when unset.
func (w WatchConfig) DebounceDuration() (time.Duration, error) {
	if w.Debounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return 0, fmt.Errorf("watch.debounce: %w", err)
	}
	return d, nil
}

// LoadConfig reads a YAML or JSON configuration file. Relative source paths
// resolve against the file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config yaml: %w", err)
		}
	}
	if strings.TrimSpace(cfg.Source.Type) == "" {
		return nil, fmt.Errorf("source.type is required")
	}
	if _, err := cfg.Watch.DebounceDuration(); err != nil {
		return nil, err
	}
	cfg.Source.BaseDir = filepath.Dir(path)
	return cfg, nil
}
