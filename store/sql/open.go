package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	authmigrations "github.com/goliatone/go-authcore/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	defaultPingTimeout = 5 * time.Second
)

// PersistenceConfig satisfies the go-persistence-bun configuration contract.
type PersistenceConfig struct {
	Debug          bool
	Driver         string
	Server         string
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.Driver
}

func (c PersistenceConfig) GetServer() string {
	return c.Server
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-authcore"
	}
	return c.OtelIdentifier
}

// OpenSQLite opens dsn with the sqlite3 driver and applies the embedded
// sqlite migrations.
func OpenSQLite(ctx context.Context, dsn string) (*persistence.Client, error) {
	return open(ctx, PersistenceConfig{Driver: DriverSQLite, Server: dsn}, sqlitedialect.New(), authmigrations.DialectSQLite)
}

// OpenPostgres opens dsn with lib/pq and applies the embedded postgres
// migrations.
func OpenPostgres(ctx context.Context, dsn string) (*persistence.Client, error) {
	return open(ctx, PersistenceConfig{Driver: DriverPostgres, Server: dsn}, pgdialect.New(), authmigrations.DialectPostgres)
}

func open(ctx context.Context, cfg PersistenceConfig, dialect schema.Dialect, migrationDialect string) (*persistence.Client, error) {
	if strings.TrimSpace(cfg.Server) == "" {
		return nil, fmt.Errorf("sqlstore: %s dsn is required", cfg.Driver)
	}
	sqlDB, err := sql.Open(cfg.Driver, cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if err := Migrate(ctx, client, migrationDialect); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Migrate registers the embedded migrations for dialect and runs them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	_, err := authmigrations.Register(ctx, func(_ context.Context, registered string, _ string, fsys fs.FS) error {
		if registered != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, authmigrations.WithValidationTargets(dialect))
	if err != nil {
		return fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}
