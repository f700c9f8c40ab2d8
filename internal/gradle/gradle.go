// Package gradle adapts the Gradle build tool to the flavor orchestrator:
// wrapper detection, wrapper version sniffing, task naming and rendering of
// the per-flavor build command.
package gradle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/harrison/flavorforge/internal/models"
)

// DefaultCommandTemplate builds one flavor with the wrapper and shared caches.
const DefaultCommandTemplate = "{gradlew} {task} --parallel --daemon --build-cache"

// ErrNoConfigFile indicates neither build.gradle nor build.gradle.kts exists.
var ErrNoConfigFile = errors.New("build configuration file not found")

var distributionURLRe = regexp.MustCompile(`distributionUrl=.*gradle-(.*)-(?:bin|all)\.zip`)

// CommandRunner runs a command string in a working directory.
type CommandRunner interface {
	Run(ctx context.Context, command, workDir string) (models.CommandResult, error)
}

// WrapperCommand returns the wrapper invocation for the current platform.
func WrapperCommand() string {
	if runtime.GOOS == "windows" {
		return "gradlew.bat"
	}
	return "./gradlew"
}

// wrapperScript returns the wrapper file name for the current platform.
func wrapperScript() string {
	if runtime.GOOS == "windows" {
		return "gradlew.bat"
	}
	return "gradlew"
}

// HasWrapper reports whether projectRoot contains a Gradle wrapper script.
func HasWrapper(projectRoot string) bool {
	_, err := os.Stat(filepath.Join(projectRoot, wrapperScript()))
	return err == nil
}

// EnsureWrapper generates the wrapper with a system Gradle when it is missing.
func EnsureWrapper(ctx context.Context, runner CommandRunner, projectRoot string) error {
	if HasWrapper(projectRoot) {
		return nil
	}

	result, err := runner.Run(ctx, "gradle wrapper", projectRoot)
	if err != nil {
		return fmt.Errorf("failed to generate gradle wrapper: %w", err)
	}
	if !result.OK() {
		return fmt.Errorf("gradle wrapper exited with code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Version returns the Gradle version pinned by the wrapper properties file.
// It returns an empty string when the file or the distribution URL is absent.
func Version(projectRoot string) (string, error) {
	path := filepath.Join(projectRoot, "gradle", "wrapper", "gradle-wrapper.properties")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read wrapper properties: %w", err)
	}

	m := distributionURLRe.FindSubmatch(data)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

// ConfigFile resolves the build configuration file discovery should scan.
// An explicit path is resolved against projectRoot; otherwise the module's
// build.gradle and then build.gradle.kts are tried.
func ConfigFile(projectRoot, module, explicit string) (string, error) {
	if explicit != "" {
		path := explicit
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectRoot, path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNoConfigFile, path)
		}
		return path, nil
	}

	for _, name := range []string{"build.gradle", "build.gradle.kts"} {
		path := filepath.Join(projectRoot, module, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoConfigFile, filepath.Join(projectRoot, module))
}

// Capitalize upper-cases the first letter and leaves the rest untouched, so
// camel-case flavor names keep their task-name shape.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// TaskName returns the assemble task for a flavor and build type,
// e.g. assembleFreeRelease.
func TaskName(flavor, buildType string) string {
	return "assemble" + Capitalize(flavor) + Capitalize(buildType)
}

// CommandSpec holds the inputs for rendering a build command template.
type CommandSpec struct {
	Template  string
	Module    string
	BuildType string
}

// RenderCommand expands the template placeholders for one flavor:
// {gradlew}, {task}, {flavor}, {Flavor}, {buildType}, {module}.
func RenderCommand(spec CommandSpec, flavor string) string {
	tmpl := spec.Template
	if tmpl == "" {
		tmpl = DefaultCommandTemplate
	}

	r := strings.NewReplacer(
		"{gradlew}", WrapperCommand(),
		"{task}", TaskName(flavor, spec.BuildType),
		"{flavor}", flavor,
		"{Flavor}", Capitalize(flavor),
		"{buildType}", spec.BuildType,
		"{module}", spec.Module,
	)
	return r.Replace(tmpl)
}
