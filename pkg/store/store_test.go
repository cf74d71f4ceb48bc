package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testStore(t *testing.T, s Store) {
	t.Helper()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("expected miss for absent key, got ok=%v err=%v", ok, err)
	}

	if err := s.Put("a", time.Time{}, []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, ok, err := s.Get("a")
	if err != nil || !ok || string(value) != "one" {
		t.Fatalf("expected stored value, got %q ok=%v err=%v", value, ok, err)
	}

	// a second put for the same key replaces the value
	if err := s.Put("a", time.Time{}, []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if value, _, _ := s.Get("a"); string(value) != "two" {
		t.Errorf("expected replacement, got %q", value)
	}

	// expired entries read as absent
	if err := s.Put("gone", time.Now().Add(-time.Second), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := s.Get("gone"); ok {
		t.Error("expired entry must read as a miss")
	}

	if err := s.Put("a\tv1", time.Time{}, []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := s.All("a")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 live entries under prefix, got %d", len(entries))
	}
	if string(entries["a\tv1"]) != "v1" {
		t.Errorf("unexpected prefix scan contents: %v", entries)
	}

	// prefixes match literally; a wildcard character in a key is just a
	// character
	if err := s.Put("u_1\tv", time.Time{}, []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("ux1\tv", time.Time{}, []byte("y")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("u%1\tv", time.Time{}, []byte("z")); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err = s.All("u_1")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("underscore in prefix must not act as a wildcard: %v", entries)
	}
	entries, err = s.All("u%1")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("percent in prefix must not act as a wildcard: %v", entries)
	}

	if err := s.Purge("a"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, ok, _ := s.Get("a"); ok {
		t.Error("purged key must read as a miss")
	}
	if err := s.Purge("never-existed"); err != nil {
		t.Errorf("purging an absent key must not fail: %v", err)
	}
}

func TestMemStore(t *testing.T) {
	testStore(t, NewMemStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestMemStoreConcurrent(t *testing.T) {
	s := NewMemStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := s.Put("shared", time.Time{}, []byte("v")); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := s.Get("shared"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
