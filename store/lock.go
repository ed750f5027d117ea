package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockFile = ".harvest_lock"

// lockStaleAfter is how old a lock file may be before it is assumed to be
// left over from a crashed run and reclaimed.
const lockStaleAfter = 2 * time.Hour

// Lock guards against two harvest runs sharing one browser profile and
// output tree at the same time.
type Lock struct {
	path string
}

// AcquireLock takes the run lock under root. It fails if another run holds
// a fresh lock; a stale lock is reclaimed.
func AcquireLock(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, lockFile)

	if info, err := os.Stat(path); err == nil {
		if time.Since(info.ModTime()) < lockStaleAfter {
			held, _ := os.ReadFile(path)
			return nil, fmt.Errorf("another harvest is already running (%s)", string(held))
		}
		// Stale lock from a crashed run.
		_ = os.Remove(path)
	}

	info := fmt.Sprintf("started=%s pid=%d", time.Now().Format(time.RFC3339), os.Getpid())
	if err := os.WriteFile(path, []byte(info), 0o644); err != nil {
		return nil, err
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call more than once.
func (l *Lock) Release() {
	_ = os.Remove(l.path)
}
