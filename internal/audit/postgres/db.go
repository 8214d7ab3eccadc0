package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/duckmesh/warehouse-mcp/internal/config"
)

const pingTimeout = 5 * time.Second

var errDSNRequired = errors.New("audit dsn is required")

// Open connects to the audit database described by cfg and verifies it with
// a ping. Connections identify themselves as applicationName unless the DSN
// already sets application_name.
func Open(ctx context.Context, cfg config.AuditConfig, applicationName string) (*sql.DB, error) {
	connConfig, err := connConfig(cfg.DSN, applicationName)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connConfig)
	applyPool(db, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit db %s: %w", describeTarget(connConfig), err)
	}
	return db, nil
}

func connConfig(dsn, applicationName string) (*pgx.ConnConfig, error) {
	if dsn == "" {
		return nil, errDSNRequired
	}
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse audit dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok && applicationName != "" {
		connConfig.RuntimeParams["application_name"] = applicationName
	}
	return connConfig, nil
}

func applyPool(db *sql.DB, cfg config.AuditConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// describeTarget names the server without credentials for error messages.
func describeTarget(connConfig *pgx.ConnConfig) string {
	return fmt.Sprintf("%s:%d/%s", connConfig.Host, connConfig.Port, connConfig.Database)
}
