package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - UNIQUE indexes on node_unique/edge_unique triples and lti keys
const currentSchemaVersion = 1

// Supported database/sql driver names.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// Optimization presets.
const (
	OptimizePerformance = "performance"
	OptimizeSafety      = "safety"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a row that must exist is missing.
var ErrNotFound = errors.New("store: not found")

// ErrNoTransaction is returned by Commit and Rollback without Begin.
var ErrNoTransaction = errors.New("store: no transaction in progress")

// ErrTransactionActive is returned by Begin when a transaction is open.
var ErrTransactionActive = errors.New("store: transaction already in progress")

// Options configures Open. Zero values select the defaults.
type Options struct {
	Path         string
	Driver       string
	PageSize     int
	CacheSize    int
	Optimization string
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = MemoryPath
	}
	if o.Driver == "" {
		o.Driver = DriverCGO
	}
	if o.PageSize == 0 {
		o.PageSize = 8192
	}
	if o.CacheSize == 0 {
		o.CacheSize = 10000
	}
	if o.Optimization == "" {
		o.Optimization = OptimizePerformance
	}
	return o
}

// Store is the episodic database.
type Store struct {
	db    *sql.DB
	opts  Options
	tx    *sql.Tx
	stmts map[string]*sql.Stmt
}

// Open creates or opens a database.
// Applies pragmas, schema and migrations automatically.
//
// The pool is pinned to one connection: SQLite has a single writer, and the
// RIT scratch tables are TEMP tables that only exist on the connection that
// created them.
//
// This function is idempotent - safe to call repeatedly on the same path.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if opts.Driver != DriverCGO && opts.Driver != DriverPure {
		return nil, fmt.Errorf("unknown driver %q", opts.Driver)
	}
	if opts.Optimization != OptimizePerformance && opts.Optimization != OptimizeSafety {
		return nil, fmt.Errorf("unknown optimization %q", opts.Optimization)
	}

	db, err := sql.Open(opts.Driver, opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(ctx, db, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, opts: opts, stmts: make(map[string]*sql.Stmt)}, nil
}

// Close releases pooled statements and the connection.
// An open transaction is rolled back.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	for q, st := range s.stmts {
		st.Close()
		delete(s.stmts, q)
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution: with the single connection, any rows left open block
// every other statement.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Options returns the resolved options the store was opened with.
func (s *Store) Options() Options {
	return s.opts
}

// Begin starts a transaction. Until Commit or Rollback every Exec, Query and
// QueryRow runs inside it.
func (s *Store) Begin(ctx context.Context) error {
	if s.tx != nil {
		return ErrTransactionActive
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction.
func (s *Store) Commit() error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the open transaction.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Prepare adds queries to the statement pool. Statements must be prepared
// outside a transaction to be pooled: the transaction holds the only
// connection.
func (s *Store) Prepare(ctx context.Context, queries ...string) error {
	if s.tx != nil {
		return ErrTransactionActive
	}
	for _, q := range queries {
		if _, ok := s.stmts[q]; ok {
			continue
		}
		st, err := s.db.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare %q: %w", firstLine(q), err)
		}
		s.stmts[q] = st
	}
	return nil
}

// stmt returns the pooled statement for query, bound to the open
// transaction if there is one. Outside a transaction a missing statement is
// prepared and pooled; inside one it is not, and ok is false.
func (s *Store) stmt(ctx context.Context, query string) (st *sql.Stmt, ok bool, err error) {
	if st, ok := s.stmts[query]; ok {
		if s.tx != nil {
			return s.tx.StmtContext(ctx, st), true, nil
		}
		return st, true, nil
	}
	if s.tx != nil {
		return nil, false, nil
	}
	st, err = s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("prepare %q: %w", firstLine(query), err)
	}
	s.stmts[query] = st
	return st, true, nil
}

// Exec executes a statement.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	st, ok, err := s.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.tx.ExecContext(ctx, query, args...)
	}
	return st.ExecContext(ctx, args...)
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows before issuing any
// other statement.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	st, ok, err := s.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.tx.QueryContext(ctx, query, args...)
	}
	return st.QueryContext(ctx, args...)
}

// QueryRow executes a query that returns at most one row.
// Preparation errors surface from Scan.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	st, ok, err := s.stmt(ctx, query)
	if err != nil || !ok {
		if s.tx != nil {
			return s.tx.QueryRowContext(ctx, query, args...)
		}
		return s.db.QueryRowContext(ctx, query, args...)
	}
	return st.QueryRowContext(ctx, args...)
}

// Int64 runs a single-value query. A NULL or missing row yields ok == false.
func (s *Store) Int64(ctx context.Context, query string, args ...any) (v int64, ok bool, err error) {
	var n sql.NullInt64
	err = s.QueryRow(ctx, query, args...).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n.Int64, n.Valid, nil
}

// Int64s runs a query and collects every row, scanning len(row) integer
// columns into a fresh slice per row. The rows are closed before return.
func (s *Store) Int64s(ctx context.Context, cols int, query string, args ...any) ([][]int64, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]int64
	dest := make([]any, cols)
	for rows.Next() {
		row := make([]int64, cols)
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// applyPragmas sets connection configuration.
// page_size only takes effect before the first table is created.
func applyPragmas(ctx context.Context, db *sql.DB, opts Options) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA page_size = %d", opts.PageSize),
		fmt.Sprintf("PRAGMA cache_size = %d", opts.CacheSize),
		"PRAGMA busy_timeout = 5000",
	}
	switch opts.Optimization {
	case OptimizePerformance:
		pragmas = append(pragmas,
			"PRAGMA synchronous = OFF",
			"PRAGMA temp_store = MEMORY",
		)
	case OptimizeSafety:
		pragmas = append(pragmas, "PRAGMA synchronous = FULL")
	}
	if opts.Path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations stamps user_version. schema.sql is idempotent and describes
// the current version in full; later versions add their steps here.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		return q[:i] + "..."
	}
	return q
}
