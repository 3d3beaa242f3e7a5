package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	FileType = "file"

	defaultMaxBytes = 10 * 1024 * 1024 // 10MB
)

// FileConfig configures a file source.
type FileConfig struct {
	Path     string `json:"path" yaml:"path"`
	MaxBytes int64  `json:"max_bytes" yaml:"max_bytes"`
}

// FileProvider reads the mapping from a local file.
type FileProvider struct {
	path     string
	maxBytes int64
}

// NewFileProvider creates a provider reading path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path, maxBytes: defaultMaxBytes}
}

// Path returns the file read by the provider.
func (p *FileProvider) Path() string {
	return p.path
}

func (p *FileProvider) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping file: %w", err)
	}
	defer f.Close()
	return readLimited(f, p.maxBytes)
}

func (p *FileProvider) Close() error {
	return nil
}

// FileFactory creates file providers.
type FileFactory struct{}

func (f *FileFactory) ValidateConfig(config Config) error {
	var cfg FileConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Path == "" {
		return fmt.Errorf("path is required")
	}
	if cfg.MaxBytes < 0 {
		return fmt.Errorf("max_bytes cannot be negative")
	}
	return nil
}

func (f *FileFactory) Create(config Config) (Provider, error) {
	var cfg FileConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	path := cfg.Path
	if !filepath.IsAbs(path) && config.BaseDir != "" {
		path = filepath.Join(config.BaseDir, path)
	}
	provider := NewFileProvider(path)
	if cfg.MaxBytes > 0 {
		provider.maxBytes = cfg.MaxBytes
	}
	return provider, nil
}

func (f *FileFactory) GetConfigSchema() ConfigSchema {
	return ConfigSchema{
		Properties: map[string]ConfigProperty{
			"path": {
				Type:        "string",
				Description: "mapping file, relative to the config file",
				Examples:    []string{"mapping.yaml"},
			},
			"max_bytes": {
				Type:        "int",
				Description: "largest mapping accepted",
				Default:     defaultMaxBytes,
			},
		},
		Required: []string{"path"},
	}
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading mapping: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("mapping exceeds %d bytes", maxBytes)
	}
	return data, nil
}
