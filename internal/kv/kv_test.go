package kv

import (
	"errors"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sq, err := NewSQLiteStore(filepath.Join(dir, "kv.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	fs, err := NewFileStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return map[string]Store{"sqlite": sq, "file": fs}
}

func TestStore_GetPutOverwrite(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get("logs"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing key: want ErrNotFound, got %v", err)
			}
			if err := s.Put("logs", []byte(`[1]`)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := s.Put("logs", []byte(`[1,2]`)); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			got, err := s.Get("logs")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != `[1,2]` {
				t.Fatalf("Get = %q", got)
			}
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Put("mechanic", []byte(`{"name":"Rui"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get("mechanic")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != `{"name":"Rui"}` {
		t.Fatalf("value mismatch: %q", got)
	}
}

func TestFileStore_RejectsBadKey(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Put("../escape", []byte("x")); err == nil {
		t.Fatalf("expected error for path-like key")
	}
}
