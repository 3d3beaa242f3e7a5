package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const RedisType = "redis"

// RedisConfig configures a source reading the mapping from a Redis key.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

// RedisProvider reads the mapping stored under a Redis string key.
type RedisProvider struct {
	key    string
	client *redis.Client
}

func (p *RedisProvider) Fetch(ctx context.Context) ([]byte, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis key %q does not exist", p.key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", p.key, err)
	}
	return data, nil
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// RedisFactory creates Redis providers.
type RedisFactory struct{}

func (f *RedisFactory) ValidateConfig(config Config) error {
	var cfg RedisConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.Key == "" {
		return fmt.Errorf("key is required")
	}
	if cfg.DB < 0 {
		return fmt.Errorf("db cannot be negative")
	}
	return nil
}

func (f *RedisFactory) Create(config Config) (Provider, error) {
	var cfg RedisConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisProvider{key: cfg.Key, client: client}, nil
}

func (f *RedisFactory) GetConfigSchema() ConfigSchema {
	return ConfigSchema{
		Properties: map[string]ConfigProperty{
			"addr": {
				Type:        "string",
				Description: "Redis server address",
				Examples:    []string{"localhost:6379", "redis.example.com:6379"},
			},
			"password": {Type: "string", Description: "Redis password"},
			"db":       {Type: "int", Description: "Redis database number", Default: 0},
			"key":      {Type: "string", Description: "key holding the mapping document"},
		},
		Required: []string{"addr", "key"},
	}
}
