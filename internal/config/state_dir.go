package config

import (
	"path/filepath"
)

// StateDirName is the per-project directory holding configuration, logs
// and the run lock.
const StateDirName = ".flavorforge"

// ConfigFileName is the configuration file inside the state directory.
const ConfigFileName = "config.yaml"

// StateDir returns the state directory of the project at projectRoot.
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, StateDirName)
}

// ResolvePath anchors a relative path at projectRoot.
// Absolute paths are returned unchanged.
func ResolvePath(projectRoot, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}
