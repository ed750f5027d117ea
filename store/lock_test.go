package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock(t *testing.T) {
	root := t.TempDir()

	l, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	if _, err := AcquireLock(root); err == nil {
		t.Error("second acquire succeeded while the lock is held")
	}

	l.Release()
	l2, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l2.Release()
}

func TestAcquireLock_ReclaimsStaleLock(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, lockFile)
	if err := os.WriteFile(path, []byte("started=old pid=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	l, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("stale lock not reclaimed: %v", err)
	}
	l.Release()
}

func TestRelease_Idempotent(t *testing.T) {
	l, err := AcquireLock(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	l.Release()
	l.Release()
}
