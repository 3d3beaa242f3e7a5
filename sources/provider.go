package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a mapping source.
type Config struct {
	Name   string                 `json:"name" yaml:"name"`
	Type   string                 `json:"type" yaml:"type"`
	Config map[string]interface{} `json:"config" yaml:"config"`
	// BaseDir resolves relative file paths; it defaults to the directory of
	// the file the config was read from.
	BaseDir string `json:"-" yaml:"-"`
}

// Label names the source in logs.
func (c Config) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// Provider fetches a raw mapping document.
type Provider interface {
	Fetch(ctx context.Context) ([]byte, error)
	Close() error
}

// Factory constructs providers of one type.
type Factory interface {
	Create(config Config) (Provider, error)
	ValidateConfig(config Config) error
	GetConfigSchema() ConfigSchema
}

// ConfigSchema describes the keys a provider type accepts.
type ConfigSchema struct {
	Properties map[string]ConfigProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

// ConfigProperty describes a single configuration key.
type ConfigProperty struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
	Examples    []string    `json:"examples,omitempty"`
}

// Registry manages the available provider types.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(providerType string, factory Factory) error {
	if providerType == "" {
		return fmt.Errorf("source type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("source factory cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[providerType] = factory
	return nil
}

func (r *Registry) Create(config Config) (Provider, error) {
	r.mu.RLock()
	factory := r.factories[config.Type]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unknown source type: %s", config.Type)
	}
	if err := factory.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config for %s: %w", config.Type, err)
	}
	return factory.Create(config)
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ConfigSchema returns the config schema of a type.
func (r *Registry) ConfigSchema(providerType string) (ConfigSchema, bool) {
	r.mu.RLock()
	factory := r.factories[providerType]
	r.mu.RUnlock()
	if factory == nil {
		return ConfigSchema{}, false
	}
	return factory.GetConfigSchema(), true
}

var defaultRegistry = NewRegistry()

// Default returns the registry holding the built-in provider types.
func Default() *Registry {
	return defaultRegistry
}

// Register registers a provider type globally.
func Register(providerType string, factory Factory) error {
	return defaultRegistry.Register(providerType, factory)
}

// Create creates a provider from the global registry.
func Create(config Config) (Provider, error) {
	return defaultRegistry.Create(config)
}

func init() {
	_ = Register(FileType, &FileFactory{})
	_ = Register(S3Type, &S3Factory{})
	_ = Register(SQLType, &SQLFactory{})
	_ = Register(RedisType, &RedisFactory{})
}

// decodeConfig maps the free-form config block onto a typed struct.
func decodeConfig(config Config, out interface{}) error {
	raw, err := json.Marshal(config.Config)
	if err != nil {
		return fmt.Errorf("encoding source config: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding source config: %w", err)
	}
	return nil
}
