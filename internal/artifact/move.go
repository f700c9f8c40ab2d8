package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/flavorforge/internal/filelock"
)

// Move transfers src into dstDir under its own base name and returns the new
// path. An existing file with the same name is replaced by a rename-over, so
// callers never observe a missing or partial destination. When a plain rename
// is impossible (e.g. across filesystems) the file is copied atomically and
// src is removed afterwards.
//
// Two flavors producing the same artifact name race here and the last move
// wins; the output directory is not locked.
func Move(src, dstDir string) (string, error) {
	return MoveWithWarn(src, dstDir, nil)
}

// Indirection for tests.
var (
	renameFile = os.Rename
	removeFile = os.Remove
)

// MoveWithWarn is Move with a callback for problems that do not fail the
// move, such as a source left behind after a successful copy.
func MoveWithWarn(src, dstDir string, warn func(msg string)) (string, error) {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dstDir, err)
	}

	dst := filepath.Join(dstDir, filepath.Base(src))

	renameErr := renameFile(src, dst)
	if renameErr == nil {
		return dst, nil
	}

	stat, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("failed to move %s: %w", src, renameErr)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	err = filelock.AtomicReplace(dst, f, stat.Mode().Perm())
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	if err := removeFile(src); err != nil && warn != nil {
		warn(fmt.Sprintf("artifact copied to %s but source not removed: %v", dst, err))
	}
	return dst, nil
}
