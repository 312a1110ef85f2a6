package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps *sql.DB with the statement builder for its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// New opens a database connection and verifies it with a ping.
func New(dialect Dialect, dsn string) (*DB, error) {
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}
	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	switch dialect {
	case DialectPostgres:
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	case DialectSQLite:
		// One connection serializes writers and keeps :memory: databases alive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	return Wrap(sqlDB, dialect), nil
}

// sqliteDSN turns a file path into a modernc DSN. Times are written in a fixed
// sortable layout so expiry comparisons work on the stored text.
func sqliteDSN(path string) string {
	params := "_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?" + params
}

// Wrap adopts an existing connection pool, e.g. one created by sqlmock.
func Wrap(sqlDB *sql.DB, dialect Dialect) *DB {
	placeholder := sq.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &DB{
		DB:      sqlDB,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Dialect returns the SQL flavour of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Builder returns a squirrel statement builder with the dialect's placeholders.
func (db *DB) Builder() sq.StatementBuilderType {
	return db.sb
}

// Ping checks connectivity; used by health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
