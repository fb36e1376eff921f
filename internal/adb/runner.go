package adb

//go:generate mockgen -source=runner.go -destination=mock_runner.go -package=adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
)

// Result is the captured outcome of one process invocation. A non-zero
// ExitCode is not an error; callers decide what it means.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an external program. ExecRunner is the production
// implementation; tests substitute a mock.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and waits for it to exit. A missing binary
// maps to ErrToolMissing and an expired deadline to ErrCommandTimeout.
func (ExecRunner) Run(ctx context.Context, name string, args []string) (Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err == nil {
		return res, nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("%w: %s", apperrors.ErrToolMissing, name)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %s %s", apperrors.ErrCommandTimeout, name, strings.Join(args, " "))
		}

		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	return res, fmt.Errorf("running %s: %w", name, err)
}
