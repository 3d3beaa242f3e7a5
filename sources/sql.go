package sources

import (
	"context"
	sqldb "database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

const SQLType = "sql"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLConfig configures a source reading the mapping from a table row.
type SQLConfig struct {
	Driver     string `json:"driver" yaml:"driver"`
	DSN        string `json:"dsn" yaml:"dsn"`
	Table      string `json:"table" yaml:"table"`
	Name       string `json:"name" yaml:"name"`
	NameColumn string `json:"name_column" yaml:"name_column"`
	BodyColumn string `json:"body_column" yaml:"body_column"`
	// VersionColumn picks the newest row when several share a name.
	VersionColumn string `json:"version_column" yaml:"version_column"`
}

// SQLProvider reads the mapping stored in a database row.
type SQLProvider struct {
	config SQLConfig
	db     *sqldb.DB
}

func (p *SQLProvider) Fetch(ctx context.Context) ([]byte, error) {
	if p.db == nil {
		return nil, fmt.Errorf("sql connection not initialized")
	}
	var body []byte
	err := p.db.QueryRowContext(ctx, p.query(), p.config.Name).Scan(&body)
	if errors.Is(err, sqldb.ErrNoRows) {
		return nil, fmt.Errorf("no mapping named %q in %s", p.config.Name, p.config.Table)
	}
	if err != nil {
		return nil, fmt.Errorf("querying mapping: %w", err)
	}
	return body, nil
}

func (p *SQLProvider) query() string {
	placeholder := "$1"
	if isMySQL(p.config.Driver) {
		placeholder = "?"
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", p.config.BodyColumn, p.config.Table, p.config.NameColumn, placeholder)
	if p.config.VersionColumn != "" {
		query += fmt.Sprintf(" ORDER BY %s DESC", p.config.VersionColumn)
	}
	return query + " LIMIT 1"
}

func (p *SQLProvider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func isMySQL(driver string) bool {
	return strings.Contains(strings.ToLower(driver), "mysql")
}

// SQLFactory creates SQL providers.
type SQLFactory struct{}

func (f *SQLFactory) ValidateConfig(config Config) error {
	cfg, err := decodeSQLConfig(config)
	if err != nil {
		return err
	}
	switch cfg.Driver {
	case "postgres", "pgx", "mysql":
	case "":
		return fmt.Errorf("driver is required")
	default:
		return fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	for key, ident := range map[string]string{
		"table":          cfg.Table,
		"name_column":    cfg.NameColumn,
		"body_column":    cfg.BodyColumn,
		"version_column": cfg.VersionColumn,
	} {
		if ident != "" && !identifierPattern.MatchString(ident) {
			return fmt.Errorf("%s %q is not a valid identifier", key, ident)
		}
	}
	return nil
}

func (f *SQLFactory) Create(config Config) (Provider, error) {
	cfg, err := decodeSQLConfig(config)
	if err != nil {
		return nil, err
	}
	db, err := sqldb.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening sql connection: %w", err)
	}
	return &SQLProvider{config: cfg, db: db}, nil
}

func (f *SQLFactory) GetConfigSchema() ConfigSchema {
	return ConfigSchema{
		Properties: map[string]ConfigProperty{
			"driver": {
				Type:        "string",
				Description: "database/sql driver name (postgres, pgx, mysql)",
			},
			"dsn":            {Type: "string", Description: "connection string for the database"},
			"name":           {Type: "string", Description: "mapping name to load"},
			"table":          {Type: "string", Description: "table holding mappings", Default: "mappings"},
			"name_column":    {Type: "string", Description: "column matched against name", Default: "name"},
			"body_column":    {Type: "string", Description: "column holding the mapping document", Default: "body"},
			"version_column": {Type: "string", Description: "column ordering revisions, newest first"},
		},
		Required: []string{"driver", "dsn", "name"},
	}
}

func decodeSQLConfig(config Config) (SQLConfig, error) {
	var cfg SQLConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return SQLConfig{}, err
	}
	if cfg.Table == "" {
		cfg.Table = "mappings"
	}
	if cfg.NameColumn == "" {
		cfg.NameColumn = "name"
	}
	if cfg.BodyColumn == "" {
		cfg.BodyColumn = "body"
	}
	return cfg, nil
}
