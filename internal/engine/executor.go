package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
)

const localDirPerm = 0o755

// ProgressFunc receives one call per executed operation, after the
// operation finishes, with a 0-based index in increasing order.
type ProgressFunc func(description string, index, total int)

// StopFlag is a cooperative cancellation flag. The Executor checks it
// between operations, never mid-copy. A nil *StopFlag is never stopped.
type StopFlag struct {
	stopped atomic.Bool
}

// Stop requests that the run stop before its next operation.
func (s *StopFlag) Stop() {
	if s != nil {
		s.stopped.Store(true)
	}
}

// Stopped reports whether Stop was called since the last Reset.
func (s *StopFlag) Stopped() bool {
	return s != nil && s.stopped.Load()
}

// Reset clears the flag for the next run.
func (s *StopFlag) Reset() {
	if s != nil {
		s.stopped.Store(false)
	}
}

// Executor applies a Plan through the Remote transport.
type Executor struct {
	remote Remote
	logger *slog.Logger
}

// NewExecutor creates an executor for the given transport.
func NewExecutor(remote Remote, logger *slog.Logger) *Executor {
	return &Executor{remote: remote, logger: logger}
}

// Target names the roots an execution writes under. KnownRemoteDirs are
// remote directories already known to exist, so the pre-pass does not
// create them again.
type Target struct {
	LocalRoot       string
	RemoteRoot      string
	KnownRemoteDirs []string
}

// Execute runs every operation in plan order and returns the stats.
// Single-item failures are counted and logged, never returned. A stop
// request or cancelled context ends the loop early with Cancelled set.
func (e *Executor) Execute(ctx context.Context, plan Plan, target Target, progress ProgressFunc, stop *StopFlag) Stats {
	stats := Stats{
		Skipped:    plan.Skipped,
		Operations: len(plan.Operations),
		Degraded:   plan.Degraded,
	}

	e.createRemoteDirs(ctx, plan, target)

	total := len(plan.Operations)
	for i, op := range plan.Operations {
		if stop.Stopped() || ctx.Err() != nil {
			e.logger.Warn("sync stopped by request",
				slog.Int("completed", i),
				slog.Int("total", total),
			)

			stats.Cancelled = true

			break
		}

		if err := e.apply(ctx, op, target); err != nil {
			stats.Errored++

			e.logger.Error("copy failed",
				slog.String("op", op.Kind.String()),
				slog.String("path", op.Record.RelPath),
				slog.String("error", err.Error()),
			)
		} else if op.Kind == OpPush {
			stats.Uploaded++
		} else {
			stats.Downloaded++
		}

		if progress != nil {
			progress(Describe(op), i, total)
		}
	}

	return stats
}

func (e *Executor) apply(ctx context.Context, op Operation, target Target) error {
	switch op.Kind {
	case OpPush:
		dst := remoteJoin(target.RemoteRoot, op.Record.RelPath)
		return e.remote.Push(ctx, op.Record.Source, dst)

	case OpPull:
		dst := filepath.Join(target.LocalRoot, filepath.FromSlash(op.Record.RelPath))
		if err := os.MkdirAll(filepath.Dir(dst), localDirPerm); err != nil {
			return fmt.Errorf("creating local directory: %w", err)
		}

		src := op.RemoteSource
		if src == "" {
			src = op.Record.Source
		}

		return e.remote.Pull(ctx, src, dst)

	default:
		return fmt.Errorf("unknown operation %s", op.Kind)
	}
}

// createRemoteDirs creates each distinct remote parent directory needed
// by the push operations, once, before any copy starts. Failures are
// logged; the affected pushes fail on their own and are counted then.
func (e *Executor) createRemoteDirs(ctx context.Context, plan Plan, target Target) {
	known := mapset.NewThreadUnsafeSet[string](target.KnownRemoteDirs...)
	known.Add(path.Clean(target.RemoteRoot))

	needed := mapset.NewThreadUnsafeSet[string]()

	for _, op := range plan.Operations {
		if op.Kind != OpPush {
			continue
		}

		dir := path.Dir(remoteJoin(target.RemoteRoot, op.Record.RelPath))
		if !known.Contains(dir) {
			needed.Add(dir)
		}
	}

	dirs := needed.ToSlice()
	slices.Sort(dirs)

	for _, dir := range dirs {
		if ctx.Err() != nil {
			return
		}

		if err := e.remote.MakeDir(ctx, dir); err != nil {
			e.logger.Warn("creating remote directory failed",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)

			continue
		}

		e.logger.Debug("created remote directory", slog.String("dir", dir))
	}
}

// Describe renders an operation for progress display.
func Describe(op Operation) string {
	return fmt.Sprintf("%s %s (%s)", op.Kind, op.Record.RelPath, humanize.Bytes(uint64(max(op.Record.Size, 0))))
}

// knownRemoteDirs returns the parent directories of every remote record.
func knownRemoteDirs(root string, inv Inventory) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, rec := range inv {
		set.Add(path.Dir(remoteJoin(root, rec.RelPath)))
	}

	return set.ToSlice()
}
