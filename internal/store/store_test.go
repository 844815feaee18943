package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var episodicTables = []string{
	"vars", "temporal_symbol_hash", "times",
	"node_unique", "node_now", "node_point", "node_range",
	"edge_unique", "edge_now", "edge_point", "edge_range",
	"lti",
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(context.Background(), Options{Path: path})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := createTestStore(t)

	for _, table := range episodicTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
	for _, table := range []string{"rit_left_nodes", "rit_right_nodes"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_temp_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("temp table %q not found: %v", table, err)
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := Open(ctx, Options{Path: path})
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		if err := s.SetVar(ctx, VarNextID, int64(i)); err != nil {
			t.Fatalf("SetVar() failed: %v", err)
		}
		s.Close()
	}

	s := createTestStoreWith(t, Options{Path: path})
	v, ok, err := s.Var(ctx, VarNextID)
	if err != nil || !ok || v != 2 {
		t.Errorf("Var(next_id) = %d, %v, %v; want 2, true, nil", v, ok, err)
	}
}

func TestOpen_StampsSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		s, err := Open(ctx, Options{Path: path})
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		var version int
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			t.Fatalf("user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
		}
		for _, index := range []string{
			"temporal_symbol_hash_type_const",
			"node_unique_parent_attrib_value",
			"edge_unique_q0_w_q1",
			"lti_letter_num",
		} {
			var name string
			err := s.db.QueryRow(
				"SELECT name FROM sqlite_master WHERE type='index' AND name=?", index,
			).Scan(&name)
			if err != nil {
				t.Errorf("index %q not found: %v", index, err)
			}
		}
		s.Close()
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s := createTestStoreWith(t, Options{Path: path})
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if s2, err := Open(ctx, Options{Path: path}); err == nil {
		s2.Close()
		t.Error("Open() of a newer schema succeeded, want error")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(context.Background(), Options{Path: "/nonexistent/dir/test.db"})
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_RejectsUnknownOptions(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{Driver: "postgres"}); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, err := Open(ctx, Options{Optimization: "fast"}); err == nil {
		t.Error("expected error for unknown optimization")
	}
}

func TestOpen_PureGoDriver(t *testing.T) {
	s := createTestStoreWith(t, Options{
		Path:   filepath.Join(t.TempDir(), "pure.db"),
		Driver: DriverPure,
	})
	ctx := context.Background()

	if err := s.SetVar(ctx, VarNodeRITOffset, 41); err != nil {
		t.Fatalf("SetVar() failed: %v", err)
	}
	v, err := s.VarOr(ctx, VarNodeRITOffset, -1)
	if err != nil || v != 41 {
		t.Errorf("VarOr() = %d, %v; want 41", v, err)
	}
}

func TestOpen_MemoryPath(t *testing.T) {
	s := createTestStoreWith(t, Options{})
	if s.Options().Path != MemoryPath {
		t.Errorf("default path = %q, want %q", s.Options().Path, MemoryPath)
	}
	if got := countRows(t, s, "times"); got != 0 {
		t.Errorf("times rows = %d, want 0", got)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("synchronous", "0"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("page_size", "8192"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragmas_Safety(t *testing.T) {
	s := createTestStoreWith(t, Options{
		Path:         filepath.Join(t.TempDir(), "safe.db"),
		Optimization: OptimizeSafety,
	})
	if err := s.verifyPragma("synchronous", "2"); err != nil {
		t.Error(err)
	}
}

func TestVar_Unset(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Var(ctx, VarEdgeRITMinStep)
	if err != nil || ok {
		t.Errorf("Var() on unset key = ok %v, err %v", ok, err)
	}
	v, err := s.VarOr(ctx, VarEdgeRITMinStep, 99)
	if err != nil || v != 99 {
		t.Errorf("VarOr() = %d, %v; want 99", v, err)
	}
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := s.Begin(ctx); !errors.Is(err, ErrTransactionActive) {
		t.Errorf("nested Begin() err = %v, want ErrTransactionActive", err)
	}
	if _, err := s.Exec(ctx, "INSERT INTO times (id) VALUES (?)", 1); err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	// Visible inside the transaction.
	if got := countRows(t, s, "times"); got != 1 {
		t.Errorf("times rows in tx = %d, want 1", got)
	}
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if got := countRows(t, s, "times"); got != 0 {
		t.Errorf("times rows after rollback = %d, want 0", got)
	}

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if _, err := s.Exec(ctx, "INSERT INTO times (id) VALUES (?)", 2); err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if got := countRows(t, s, "times"); got != 1 {
		t.Errorf("times rows after commit = %d, want 1", got)
	}
	if err := s.Commit(); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Commit() without tx err = %v, want ErrNoTransaction", err)
	}
}

func TestPrepare_PoolsStatements(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	const q = "SELECT COUNT(*) FROM times WHERE id > ?"

	if err := s.Prepare(ctx, q, q); err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	if len(s.stmts) != 1 {
		t.Errorf("pooled statements = %d, want 1", len(s.stmts))
	}

	// Pooled statements also run inside a transaction.
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := s.Prepare(ctx, "SELECT 1"); !errors.Is(err, ErrTransactionActive) {
		t.Errorf("Prepare() in tx err = %v, want ErrTransactionActive", err)
	}
	if _, err := s.Exec(ctx, "INSERT INTO times (id) VALUES (5)"); err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	n, ok, err := s.Int64(ctx, q, 0)
	if err != nil || !ok || n != 1 {
		t.Errorf("Int64() = %d, %v, %v; want 1", n, ok, err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}

func TestInt64s(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		if _, err := s.Exec(ctx, "INSERT INTO times (id) VALUES (?)", id); err != nil {
			t.Fatalf("Exec() failed: %v", err)
		}
	}
	rows, err := s.Int64s(ctx, 2, "SELECT id, id * 10 FROM times ORDER BY id DESC")
	if err != nil {
		t.Fatalf("Int64s() failed: %v", err)
	}
	want := [][]int64{{3, 30}, {2, 20}, {1, 10}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}

	// The single connection is free again: a follow-up statement must not block.
	if got := countRows(t, s, "times"); got != 3 {
		t.Errorf("times rows = %d, want 3", got)
	}
}

func TestInt64_NullAndMissing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Int64(ctx, "SELECT MAX(id) FROM times")
	if err != nil || ok {
		t.Errorf("Int64(MAX on empty) ok = %v, err = %v; want false, nil", ok, err)
	}
	_, ok, err = s.Int64(ctx, "SELECT id FROM times WHERE id = 7")
	if err != nil || ok {
		t.Errorf("Int64(no rows) ok = %v, err = %v; want false, nil", ok, err)
	}
}

func TestUniqueTriples(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	const ins = "INSERT INTO edge_unique (q0, w, q1, last) VALUES (?, ?, ?, ?)"

	if _, err := s.Exec(ctx, ins, 0, 5, 1, 9); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.Exec(ctx, ins, 0, 5, 1, 9); err == nil {
		t.Error("duplicate (q0, w, q1) insert succeeded")
	}
}

func TestClose_Twice(t *testing.T) {
	s, err := Open(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}
