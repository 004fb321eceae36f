package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/openclaw/credit-ledger-go/internal/config"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// Connect opens postgres for postgres:// URLs and key/value DSNs, sqlite otherwise.
func Connect(databaseURL string) (*DB, error) {
	dialect, dsn, err := DetectDialect(databaseURL)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(config.DBMaxOpenConns)
		db.SetMaxIdleConns(config.DBMaxIdleConns)
		db.SetConnMaxLifetime(config.DBConnMaxLifetime)
		return &DB{DB: db, Dialect: dialect}, nil

	default:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		db, err := sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection serializes
		// transactions instead of failing them with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if err := applySQLitePragmas(db); err != nil {
			db.Close()
			return nil, err
		}
		return &DB{DB: db, Dialect: dialect}, nil
	}
}

// DetectDialect infers the driver from a DSN and returns the DSN the driver expects.
func DetectDialect(databaseURL string) (Dialect, string, error) {
	trimmed := strings.TrimSpace(databaseURL)
	if trimmed == "" {
		return "", "", fmt.Errorf("database: empty url")
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, trimmed, nil
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname="):
		return DialectPostgres, trimmed, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, "file:" + trimmed[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "file:"), !strings.Contains(lower, "://"):
		return DialectSQLite, trimmed, nil
	default:
		return "", "", fmt.Errorf("database: unsupported url scheme")
	}
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("database: create sqlite dir: %w", err)
	}
	return nil
}

func applySQLitePragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("database: sqlite %s: %w", pragma, err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// TxFunc is a function that runs within a transaction.
type TxFunc func(tx *sqlx.Tx) error

// WithTx executes fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", ClassifyError(err))
	}

	return nil
}
