// Package artifact finds, validates and delivers the files produced by a
// flavor build.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default output layout for Android application modules.
const (
	DefaultLayout    = "{module}/build/outputs/apk/{flavor}/{buildType}"
	DefaultModule    = "app"
	DefaultBuildType = "release"
	DefaultExtension = ".apk"
)

// ErrNotFound indicates the flavor's output directory is missing or holds no
// matching file. The orchestrator treats it as a transient build failure.
var ErrNotFound = errors.New("artifact not found")

// Locator computes a flavor's conventional output directory and lists the
// artifacts in it.
type Locator struct {
	Layout    string // Path template relative to the project root
	Module    string
	BuildType string
	Extension string // Required file suffix, e.g. ".apk"
}

// NewLocator creates a Locator, filling empty fields with the Android defaults.
func NewLocator(layout, module, buildType, extension string) *Locator {
	l := &Locator{
		Layout:    layout,
		Module:    module,
		BuildType: buildType,
		Extension: extension,
	}
	if l.Layout == "" {
		l.Layout = DefaultLayout
	}
	if l.Module == "" {
		l.Module = DefaultModule
	}
	if l.BuildType == "" {
		l.BuildType = DefaultBuildType
	}
	if l.Extension == "" {
		l.Extension = DefaultExtension
	}
	return l
}

// Dir returns the output directory the build tool populates for flavor.
func (l *Locator) Dir(projectRoot, flavor string) string {
	rel := strings.NewReplacer(
		"{module}", l.Module,
		"{flavor}", flavor,
		"{buildType}", l.BuildType,
	).Replace(l.Layout)
	return filepath.Join(projectRoot, filepath.FromSlash(rel))
}

// Locate returns the artifacts in flavor's output directory in directory
// listing order. Callers treat the first path as canonical.
func (l *Locator) Locate(projectRoot, flavor string) ([]string, error) {
	dir := l.Dir(projectRoot, flavor)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), l.Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no *%s file in %s", ErrNotFound, l.Extension, dir)
	}
	return paths, nil
}

// Clean removes flavor's output directory so a retry cannot pick up a stale
// artifact from the previous attempt. A missing directory is not an error.
func (l *Locator) Clean(projectRoot, flavor string) error {
	dir := l.Dir(projectRoot, flavor)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	return nil
}
