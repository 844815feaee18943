package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore opens a fresh file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return createTestStoreWith(t, Options{Path: filepath.Join(t.TempDir(), "test.db")})
}

func createTestStoreWith(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func countRows(t *testing.T, s *Store, table string) int64 {
	t.Helper()
	n, _, err := s.Int64(context.Background(), "SELECT COUNT(*) FROM "+table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
