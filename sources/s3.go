package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const S3Type = "s3"

// S3Config configures an S3 source.
type S3Config struct {
	Region         string `json:"region" yaml:"region"`
	Bucket         string `json:"bucket" yaml:"bucket"`
	Key            string `json:"key" yaml:"key"`
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `json:"force_path_style" yaml:"force_path_style"`
	AccessKey      string `json:"access_key" yaml:"access_key"`
	SecretKey      string `json:"secret_key" yaml:"secret_key"`
	SessionToken   string `json:"session_token" yaml:"session_token"`
	Timeout        string `json:"timeout" yaml:"timeout"`
	MaxBytes       int64  `json:"max_bytes" yaml:"max_bytes"`
}

// S3Provider reads the mapping from an S3 object.
type S3Provider struct {
	config  S3Config
	timeout time.Duration
	client  *s3.Client
}

func (p *S3Provider) Fetch(ctx context.Context) ([]byte, error) {
	if p.client == nil {
		client, err := newS3Client(ctx, p.config)
		if err != nil {
			return nil, err
		}
		p.client = client
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(p.config.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", p.config.Bucket, p.config.Key, err)
	}
	defer out.Body.Close()
	return readLimited(out.Body, p.config.MaxBytes)
}

func (p *S3Provider) Close() error {
	return nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// S3Factory creates S3 providers.
type S3Factory struct{}

func (f *S3Factory) ValidateConfig(config Config) error {
	cfg, err := decodeS3Config(config)
	if err != nil {
		return err
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if cfg.Key == "" {
		return fmt.Errorf("key is required")
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	if cfg.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Timeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	return nil
}

func (f *S3Factory) Create(config Config) (Provider, error) {
	cfg, err := decodeS3Config(config)
	if err != nil {
		return nil, err
	}
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		if timeout, err = time.ParseDuration(cfg.Timeout); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}
	return &S3Provider{config: cfg, timeout: timeout}, nil
}

func (f *S3Factory) GetConfigSchema() ConfigSchema {
	return ConfigSchema{
		Properties: map[string]ConfigProperty{
			"bucket":           {Type: "string", Description: "bucket holding the mapping"},
			"key":              {Type: "string", Description: "object key of the mapping", Examples: []string{"mappings/logs.yaml"}},
			"region":           {Type: "string", Description: "AWS region", Default: "us-east-1"},
			"endpoint":         {Type: "string", Description: "custom endpoint for S3 compatible stores"},
			"force_path_style": {Type: "bool", Description: "use path style addressing", Default: false},
			"access_key":       {Type: "string", Description: "static access key, defaults to the AWS credential chain"},
			"secret_key":       {Type: "string", Description: "static secret key"},
			"session_token":    {Type: "string", Description: "static session token"},
			"timeout":          {Type: "string", Description: "request timeout", Default: "30s"},
		},
		Required: []string{"bucket", "key"},
	}
}

func decodeS3Config(config Config) (S3Config, error) {
	var cfg S3Config
	if err := decodeConfig(config, &cfg); err != nil {
		return S3Config{}, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}
