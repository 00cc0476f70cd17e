package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return s
}

func readAll(t *testing.T, s Storage, key string) string {
	t.Helper()
	rc, err := s.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("Read %s: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(data)
}

func TestLocalStorageWriteRead(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Write(ctx, "rooms/r1/a/0", strings.NewReader("hello"), 5, "application/octet-stream"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := readAll(t, s, "rooms/r1/a/0"); got != "hello" {
		t.Errorf("Expected hello, got %q", got)
	}

	ok, err := s.Exists(ctx, "rooms/r1/a/0")
	if err != nil || !ok {
		t.Errorf("Expected key to exist, got %v (%v)", ok, err)
	}
	ok, err = s.Exists(ctx, "rooms/r1/a/1")
	if err != nil || ok {
		t.Errorf("Expected key to be missing, got %v (%v)", ok, err)
	}
}

func TestLocalStorageShortWrite(t *testing.T) {
	s := newTestLocal(t)
	err := s.Write(context.Background(), "k", strings.NewReader("abc"), 10, "")
	if err == nil {
		t.Fatal("Expected a short write error")
	}
	if ok, _ := s.Exists(context.Background(), "k"); ok {
		t.Error("Expected nothing stored after a short write")
	}
	entries, _ := os.ReadDir(s.basePath)
	if len(entries) != 0 {
		t.Errorf("Expected no temp files left, got %d entries", len(entries))
	}
}

func TestLocalStorageReadMissing(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.Read(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(context.Background(), "nope"); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}
}

func TestLocalStorageDeletePrefix(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	keys := []string{"ns/set1/0", "ns/set1/1", "ns/set2/0", "ns/other"}
	for _, k := range keys {
		if err := s.Write(ctx, k, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Write %s: %v", k, err)
		}
	}

	if err := s.DeletePrefix(ctx, "ns/set1"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	expected := map[string]bool{"ns/set1/0": false, "ns/set1/1": false, "ns/set2/0": true, "ns/other": true}
	for k, want := range expected {
		if ok, _ := s.Exists(ctx, k); ok != want {
			t.Errorf("%s: expected exists %v, got %v", k, want, ok)
		}
	}

	if err := s.DeletePrefix(ctx, "ns/set"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if ok, _ := s.Exists(ctx, "ns/set2/0"); ok {
		t.Error("Expected name prefix to remove set2")
	}
	if ok, _ := s.Exists(ctx, "ns/other"); !ok {
		t.Error("Expected ns/other to survive")
	}

	if err := s.DeletePrefix(ctx, ""); err == nil {
		t.Error("Expected deleting the root to be refused")
	}
}

func TestLocalStorageKeysStayInside(t *testing.T) {
	s := newTestLocal(t)
	tests := []string{"../escape", "../../etc/passwd", "a/../../b"}
	for _, key := range tests {
		p := s.fullPath(key)
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			t.Errorf("%s: expected a path below the base, got %s", key, p)
		}
	}
}

func TestNewLocalStorageRequiresPath(t *testing.T) {
	if _, err := NewLocalStorage(LocalConfig{}); err == nil {
		t.Error("Expected an error for an empty base path")
	}
}
