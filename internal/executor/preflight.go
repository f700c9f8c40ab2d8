package executor

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckProject verifies that root exists and is a directory. It returns the
// absolute path.
func CheckProject(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrInvalidProject, abs)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidProject, abs)
	}
	return abs, nil
}

// PrepareOutputDir creates dir when needed and verifies that files can be
// created in it. It returns the absolute path.
func PrepareOutputDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputNotWritable, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputNotWritable, err)
	}

	probe, err := os.CreateTemp(abs, ".flavorforge-probe-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputNotWritable, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return abs, nil
}
