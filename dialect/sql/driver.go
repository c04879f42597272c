// Package sql holds the database connection used for inspection and export,
// with optional statement statistics.
package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/syssam/relmeta/dialect"
)

// ExecQuerier wraps the standard Exec and Query methods. *sql.DB, *sql.Tx
// and *StatsConn implement it, and so does atlas' schema.ExecQuerier.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Driver is a database handle bound to a dialect. Statements go through
// the embedded ExecQuerier, which is the *sql.DB itself or a StatsConn
// wrapping it.
type Driver struct {
	ExecQuerier
	db      *sql.DB
	dialect string
}

// Open wraps the database/sql.Open method and returns a Driver. The dialect
// is used as the database/sql driver name.
func Open(dialect, source string) (*Driver, error) {
	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(dialect, db), nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(dialect string, db *sql.DB) *Driver {
	return &Driver{ExecQuerier: db, db: db, dialect: dialect}
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect returns the dialect of the driver.
func (d *Driver) Dialect() string {
	// Driver names such as "sqlite3" or "postgres-otel" map to their dialect.
	for _, name := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// WithStats returns a copy of the driver that records statistics for every
// statement.
func (d *Driver) WithStats(opts ...StatsOption) *Driver {
	return &Driver{ExecQuerier: NewStatsConn(d.ExecQuerier, opts...), db: d.db, dialect: d.dialect}
}

// QueryStats returns the statistics of a driver created by WithStats, or nil.
func (d *Driver) QueryStats() *QueryStats {
	if s, ok := d.ExecQuerier.(*StatsConn); ok {
		return s.QueryStats()
	}
	return nil
}

// BeginTx starts a transaction. Statements in the transaction are recorded
// with the driver statistics, if any.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	var eq ExecQuerier = tx
	if s, ok := d.ExecQuerier.(*StatsConn); ok {
		eq = s.Wrap(tx)
	}
	return &Tx{ExecQuerier: eq, Tx: tx}, nil
}

// Ping verifies the connection to the database.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("dialect/sql: ping %s: %w", d.Dialect(), err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.db.Close() }

// Tx is a transaction started by Driver.BeginTx.
type Tx struct {
	ExecQuerier
	driver.Tx
}

// TxOptions holds the transaction options to be used in DB.BeginTx.
type TxOptions = sql.TxOptions
