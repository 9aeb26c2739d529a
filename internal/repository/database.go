package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"
	"time"

	"wbtrack-rest-api/internal/repository/migrations"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// DB is a connection pool bound to one SQL dialect.
// Repositories write queries with ? placeholders and let DB rebind them.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open connects to the database selected by driver, checks the connection
// and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect := Dialect(driver)

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectPostgres:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
		}
		// Connection pool settings for high traffic
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)

	case DialectMySQL:
		cfg, perr := mysql.ParseDSN(dsn)
		if perr != nil {
			return nil, fmt.Errorf("invalid MySQL DSN: %w", perr)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		db, err = sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open MySQL: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

	case DialectSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		// SQLite only supports 1 writer; an in-memory database lives on its only connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}

	wrapped := &DB{DB: db, dialect: dialect}
	if err := wrapped.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[Database] Connected to %s", dialect)
	return wrapped, nil
}

// sqliteDSN appends the pragmas every connection needs.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

// Dialect reports the backend this pool talks to.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) migrate(ctx context.Context) error {
	var gooseDialect goose.Dialect
	switch db.dialect {
	case DialectPostgres:
		gooseDialect = goose.DialectPostgres
	case DialectMySQL:
		gooseDialect = goose.DialectMySQL
	case DialectSQLite:
		gooseDialect = goose.DialectSQLite3
	}

	fsys, err := fs.Sub(migrations.FS, string(db.dialect))
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		log.Printf("[Database] Applied migration %s (%v)", r.Source.Path, r.Duration)
	}
	return nil
}

// Rebind converts ? placeholders to the dialect's bind syntax.
func (db *DB) Rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// insertIgnore turns an INSERT into one that skips rows violating a unique key.
func (db *DB) insertIgnore(table, columns, conflict string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", strings.Count(columns, ",")+1), ", ")
	if db.dialect == DialectMySQL {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, columns, placeholders)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING", table, columns, placeholders, conflict)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertID runs an INSERT and returns the generated key in idColumn.
// Query text uses ? placeholders.
func (db *DB) insertID(ctx context.Context, q execer, idColumn, query string, args ...any) (int64, error) {
	if db.dialect == DialectPostgres {
		var id int64
		err := q.QueryRowContext(ctx, db.Rebind(query+" RETURNING "+idColumn), args...).Scan(&id)
		return id, err
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// isUniqueViolation reports whether err is a unique or primary key conflict.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
