package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads a source configuration from a YAML/JSON file. The
// source may sit under a top-level "source" key or be the whole document.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading source config: %w", err)
	}
	cfg, err := decodeSourceConfig(path, data)
	if err != nil {
		return Config{}, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Dir(path)
	}
	return cfg, nil
}

func decodeSourceConfig(path string, data []byte) (Config, error) {
	wrapper := struct {
		Source *Config `json:"source" yaml:"source"`
	}{}

	unmarshal := yaml.Unmarshal
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &wrapper); err != nil {
		return Config{}, fmt.Errorf("parsing source config: %w", err)
	}
	if wrapper.Source != nil {
		return *wrapper.Source, nil
	}

	var cfg Config
	if err := unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing source config: %w", err)
	}
	if strings.TrimSpace(cfg.Type) == "" {
		return Config{}, fmt.Errorf("source config has empty type")
	}
	return cfg, nil
}

// Fetch creates the configured provider, reads one mapping document and
// closes the provider again.
func Fetch(ctx context.Context, registry *Registry, cfg Config, logger logrus.FieldLogger) ([]byte, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, fmt.Errorf("source has empty type")
	}
	if registry == nil {
		registry = defaultRegistry
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider, err := registry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating source %s: %w", cfg.Type, err)
	}

	logger.WithFields(logrus.Fields{"source": cfg.Label(), "type": cfg.Type}).Debug("fetching mapping")
	data, fetchErr := provider.Fetch(ctx)
	closeErr := provider.Close()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetching mapping from %s: %w", cfg.Label(), fetchErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("closing source %s: %w", cfg.Label(), closeErr)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("source %s returned an empty mapping", cfg.Label())
	}
	return data, nil
}
