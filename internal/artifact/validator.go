package artifact

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/harrison/flavorforge/internal/models"
)

// DefaultMinSize is the smallest artifact accepted by default. Anything
// smaller is almost certainly a truncated or empty build output.
const DefaultMinSize int64 = 2 << 20

// DefaultSignatureCommand verifies an APK signature.
const DefaultSignatureCommand = "apksigner verify --verbose {path}"

// ErrRejected is wrapped by every RejectError.
var ErrRejected = errors.New("artifact rejected")

// RejectError explains why a located artifact was not accepted.
type RejectError struct {
	Path   string
	Check  string
	Reason string
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s check: %s", e.Path, e.Check, e.Reason)
}

// Is matches ErrRejected.
func (e *RejectError) Is(target error) bool {
	return target == ErrRejected
}

func reject(path, check, format string, args ...interface{}) *RejectError {
	return &RejectError{Path: path, Check: check, Reason: fmt.Sprintf(format, args...)}
}

// Info describes an artifact as observed by the validator.
type Info struct {
	Path   string
	Size   int64
	MD5    string
	Signed *bool
}

// Check is an additional validation predicate. A check may record
// observations on info and may reject the artifact; it can never accept an
// artifact an earlier check rejected, because the validator stops at the
// first rejection.
type Check interface {
	Name() string
	Check(ctx context.Context, info *Info) error
}

// Validator accepts or rejects a located artifact.
type Validator struct {
	minSize int64
	checks  []Check
}

// NewValidator creates a Validator with a minimum size and optional extra checks.
func NewValidator(minSize int64, checks ...Check) *Validator {
	return &Validator{minSize: minSize, checks: checks}
}

// MinSize returns the configured minimum size in bytes.
func (v *Validator) MinSize() int64 {
	return v.minSize
}

// Validate returns the artifact's Info when it is accepted, or a
// *RejectError describing the first failed check. An empty file is always
// rejected, and a size exactly at the threshold is accepted.
func (v *Validator) Validate(ctx context.Context, path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, reject(path, "exists", "file does not exist")
		}
		return nil, reject(path, "exists", "%v", err)
	}
	if !stat.Mode().IsRegular() {
		return nil, reject(path, "exists", "not a regular file")
	}

	info := &Info{Path: path, Size: stat.Size()}
	if info.Size == 0 {
		return info, reject(path, "size", "file is empty")
	}
	if info.Size < v.minSize {
		return info, reject(path, "size", "%s is below the %s minimum",
			humanize.Bytes(uint64(info.Size)), humanize.Bytes(uint64(v.minSize)))
	}

	for _, check := range v.checks {
		if err := ctx.Err(); err != nil {
			return info, err
		}
		if err := check.Check(ctx, info); err != nil {
			return info, err
		}
	}

	return info, nil
}

// ChecksumCheck records the artifact's MD5 digest.
type ChecksumCheck struct{}

// Name implements Check.
func (ChecksumCheck) Name() string { return "checksum" }

// Check implements Check. An unreadable artifact is rejected.
func (c ChecksumCheck) Check(ctx context.Context, info *Info) error {
	f, err := os.Open(info.Path)
	if err != nil {
		return reject(info.Path, c.Name(), "%v", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return reject(info.Path, c.Name(), "%v", err)
	}
	info.MD5 = hex.EncodeToString(h.Sum(nil))
	return nil
}

// CommandRunner runs a command string in a working directory.
type CommandRunner interface {
	Run(ctx context.Context, command, workDir string) (models.CommandResult, error)
}

// SignatureCheck runs an external verifier against the artifact. The
// artifact counts as signed when the verifier exits zero and prints
// "Verified". With Require set, an unsigned artifact is rejected; otherwise
// the outcome is only recorded.
type SignatureCheck struct {
	Runner  CommandRunner
	Command string // Template with a {path} placeholder
	Require bool
}

// Name implements Check.
func (SignatureCheck) Name() string { return "signature" }

// Check implements Check.
func (c SignatureCheck) Check(ctx context.Context, info *Info) error {
	tmpl := c.Command
	if tmpl == "" {
		tmpl = DefaultSignatureCommand
	}
	command := strings.ReplaceAll(tmpl, "{path}", shellQuote(info.Path))

	result, err := c.Runner.Run(ctx, command, "")
	if err != nil {
		if c.Require {
			return reject(info.Path, c.Name(), "verifier could not run: %v", err)
		}
		return nil
	}

	signed := result.OK() && strings.Contains(result.Stdout, "Verified")
	info.Signed = &signed
	if c.Require && !signed {
		return reject(info.Path, c.Name(), "signature not verified (exit code %d)", result.ExitCode)
	}
	return nil
}

// shellQuote wraps s in single quotes for shell-style command splitting.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
