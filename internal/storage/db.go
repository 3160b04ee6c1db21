// Package storage is the relational persistence boundary for canonical
// references, their identifiers and child collections, the content-hash table
// and the append-only version log. The same code serves SQLite (modernc) and
// PostgreSQL (pgx).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DefaultCuriePrefix is used for generated reference curies.
const DefaultCuriePrefix = "AGR"

// Common errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrMissingActor  = errors.New("actor is required for writes")
	ErrUnknownDriver = errors.New("unknown database driver")
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a database connection.
type DB struct {
	reader
	db          *sql.DB
	driver      string
	curiePrefix string
	now         func() time.Time
}

// Tx is a transaction. All writes happen on a Tx and are recorded in the
// version log under the caller-supplied actor.
type Tx struct {
	reader
	tx *sql.Tx
	d  *DB
}

// reader carries the read queries shared by DB and Tx.
type reader struct {
	q queryer
	d *DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	return Open(DriverSQLite, path)
}

// Open connects using driver ("sqlite" or "pgx") and creates the schema if
// needed.
func Open(driver, dsn string) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	d := &DB{
		db:          db,
		driver:      driver,
		curiePrefix: DefaultCuriePrefix,
		now:         func() time.Time { return time.Now().UTC() },
	}
	d.reader = reader{q: db, d: d}

	if err := d.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Driver returns the driver name the DB was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// SetCuriePrefix sets the prefix used for newly generated curies.
func (d *DB) SetCuriePrefix(prefix string) {
	if prefix != "" {
		d.curiePrefix = prefix
	}
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Begin starts a transaction.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{reader: reader{q: tx, d: d}, tx: tx, d: d}, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Savepoint runs fn inside a named savepoint. When fn fails, only the work
// done since the savepoint is rolled back and the transaction stays usable.
func (t *Tx) Savepoint(ctx context.Context, name string, fn func() error) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("creating savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back savepoint: %w", rbErr))
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return errors.Join(err, fmt.Errorf("releasing savepoint: %w", relErr))
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("releasing savepoint: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (r reader) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.d.rebind(query), args...)
}

func (r reader) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.d.rebind(query), args...)
}

func (r reader) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.d.rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id and returns the new id.
func (r reader) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := r.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (d *DB) timestamp() string {
	return d.now().Format(time.RFC3339Nano)
}
