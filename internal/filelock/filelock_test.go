package filelock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewFileLock(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "test.lock")

	lock := NewFileLock(lockPath)
	if lock == nil {
		t.Fatal("NewFileLock should not return nil")
	}

	if lock.Path() != lockPath {
		t.Errorf("Expected lock path %s, got %s", lockPath, lock.Path())
	}
}

func TestTryLock(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "test.lock")

	lock1 := NewFileLock(lockPath)
	lock2 := NewFileLock(lockPath)

	acquired, err := lock1.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !acquired {
		t.Fatal("First TryLock should succeed")
	}

	acquired, err = lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if acquired {
		t.Error("Second TryLock should fail when lock is held")
	}

	if err := lock1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	acquired, err = lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !acquired {
		t.Error("TryLock should succeed after unlock")
	}

	lock2.Unlock()
}

func TestAcquireRunLock(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), ".flavorforge")

	lock, err := AcquireRunLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(stateDir, RunLockName)); err != nil {
		t.Fatalf("lock file should exist: %v", err)
	}

	_, err = AcquireRunLock(stateDir)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked while held, got %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	again, err := AcquireRunLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireRunLock after release failed: %v", err)
	}
	again.Unlock()
}

func TestAtomicReplace(t *testing.T) {
	tmpDir := t.TempDir()
	targetPath := filepath.Join(tmpDir, "out", "free.apk")

	if err := AtomicReplace(targetPath, strings.NewReader("first"), 0644); err != nil {
		t.Fatalf("AtomicReplace failed: %v", err)
	}
	if err := AtomicReplace(targetPath, strings.NewReader("second"), 0644); err != nil {
		t.Fatalf("AtomicReplace overwrite failed: %v", err)
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected content %q, got %q", "second", string(data))
	}
}

func TestAtomicReplacePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	targetPath := filepath.Join(tmpDir, "test.apk")

	if err := AtomicReplace(targetPath, strings.NewReader("x"), 0640); err != nil {
		t.Fatalf("AtomicReplace failed: %v", err)
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("Expected permissions %v, got %v", os.FileMode(0640), info.Mode().Perm())
	}
}

func TestAtomicReplaceNoTempFileLeftBehind(t *testing.T) {
	tmpDir := t.TempDir()
	targetPath := filepath.Join(tmpDir, "test.apk")

	if err := AtomicReplace(targetPath, strings.NewReader("content"), 0644); err != nil {
		t.Fatalf("AtomicReplace failed: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}

	if len(entries) != 1 || entries[0].Name() != "test.apk" {
		var files []string
		for _, entry := range entries {
			files = append(files, entry.Name())
		}
		t.Errorf("Expected only test.apk, found %v", files)
	}
}

func TestConcurrentAtomicReplace(t *testing.T) {
	tmpDir := t.TempDir()
	targetPath := filepath.Join(tmpDir, "test.apk")

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()

			content := string(rune('A' + id))
			if err := AtomicReplace(targetPath, strings.NewReader(content), 0644); err != nil {
				t.Errorf("AtomicReplace failed for goroutine %d: %v", id, err)
			}
		}(i)
	}

	wg.Wait()

	content, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}

	// Last write wins, but the file is never torn
	if len(content) != 1 {
		t.Errorf("Expected 1 byte, got %d bytes: %q", len(content), string(content))
	}
}
