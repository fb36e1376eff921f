package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"golang.org/x/sync/errgroup"
)

// RunOptions carries the per-run callbacks supplied by the caller.
type RunOptions struct {
	// Progress is called after each operation. Optional.
	Progress ProgressFunc
	// Conflict decides bidirectional conflicts when the policy has no
	// conflict hook. Optional; nil means skip.
	Conflict func(relPath string, local, remote FileRecord) Decision
	// Stop is the cooperative cancellation flag. Optional.
	Stop *StopFlag
	// Logger overrides the engine logger for this run. Optional.
	Logger *slog.Logger
}

// Engine runs reconciliation passes against one remote endpoint.
type Engine struct {
	remote   Remote
	policies PolicyFactory
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an engine. policies may be nil when no pipeline names a
// policy.
func New(remote Remote, policies PolicyFactory, logger *slog.Logger) *Engine {
	return &Engine{
		remote:   remote,
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one full sync for spec: resolve roots, validate them,
// collect both inventories, reconcile, and execute. Setup and inventory
// failures abort the run and are returned wrapped around one of the
// sentinels in internal/errors; per-file copy failures only show up in
// Stats.Errored.
func (e *Engine) Run(ctx context.Context, spec SyncSpec, opts RunOptions) (Stats, error) {
	spec = spec.Clone()

	logger := opts.Logger
	if logger == nil {
		logger = e.logger
	}

	logger = logger.With(slog.String("pipeline", spec.Name))

	if !spec.Direction.Valid() {
		return Stats{}, fmt.Errorf("%w: unknown direction %q", apperrors.ErrInvalidSpec, spec.Direction)
	}

	hooks, err := e.policy(spec)
	if err != nil {
		return Stats{}, err
	}

	hc := HookContext{Remote: e.remote, Logger: logger, Spec: spec}

	stats, err := e.run(ctx, spec, hooks, hc, opts)
	if err != nil {
		logger.Error("sync failed", slog.String("error", err.Error()))
		hooks.onError(ctx, hc, err)

		return Stats{}, err
	}

	hooks.onEnd(ctx, hc, stats)

	return stats, nil
}

func (e *Engine) policy(spec SyncSpec) (*Hooks, error) {
	if spec.Policy == "" {
		return nil, nil
	}

	if e.policies == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownPolicy, spec.Policy)
	}

	hooks, err := e.policies.New(spec.Policy, spec.PolicyConfig)
	if err != nil {
		return nil, fmt.Errorf("creating policy %s: %w", spec.Policy, err)
	}

	return hooks, nil
}

func (e *Engine) run(ctx context.Context, spec SyncSpec, hooks *Hooks, hc HookContext, opts RunOptions) (Stats, error) {
	logger := hc.Logger

	localRoot, remoteRoot, err := hooks.resolvePaths(ctx, hc)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", apperrors.ErrPathResolution, err)
	}

	if localRoot != spec.Local || remoteRoot != spec.Remote {
		logger.Info("policy resolved paths",
			slog.String("local", localRoot),
			slog.String("remote", remoteRoot),
		)
	}

	if !localRootExists(localRoot) {
		return Stats{}, fmt.Errorf("%w: %s", apperrors.ErrLocalRootMissing, localRoot)
	}

	if err := e.ensureRemoteRoot(ctx, remoteRoot); err != nil {
		return Stats{}, err
	}

	hooks.onStart(ctx, hc)

	filter := NewFilter(spec, e.now(), func(ctx context.Context, rec FileRecord) bool {
		return hooks.filterFile(ctx, rec, hc)
	})

	var (
		localInv  Inventory
		remoteInv RemoteInventory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inv, err := CollectLocal(gctx, localRoot, filter, logger)
		localInv = inv

		return err
	})
	g.Go(func() error {
		inv, err := CollectRemote(gctx, e.remote, remoteRoot, filter, logger)
		remoteInv = inv

		return err
	})

	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", apperrors.ErrInventory, err)
	}

	logger.Info("inventories collected",
		slog.Int("local", len(localInv)),
		slog.Int("remote", len(remoteInv.Files)),
		slog.Bool("degraded", remoteInv.Degraded),
	)

	plan := Reconcile(localInv, remoteInv.Files, spec.Direction, e.conflictFunc(ctx, hooks, hc, opts.Conflict))
	plan.Degraded = remoteInv.Degraded

	logger.Info("reconciled",
		slog.Int("operations", len(plan.Operations)),
		slog.Int("skipped", plan.Skipped),
		slog.Int("conflicts", plan.Conflicts),
	)

	exec := NewExecutor(e.remote, logger)
	stats := exec.Execute(ctx, plan, Target{
		LocalRoot:       localRoot,
		RemoteRoot:      remoteRoot,
		KnownRemoteDirs: knownRemoteDirs(remoteRoot, remoteInv.Files),
	}, opts.Progress, opts.Stop)

	logger.Info("sync complete",
		slog.Int("uploaded", stats.Uploaded),
		slog.Int("downloaded", stats.Downloaded),
		slog.Int("skipped", stats.Skipped),
		slog.Int("errored", stats.Errored),
		slog.Bool("cancelled", stats.Cancelled),
	)

	return stats, nil
}

func (e *Engine) ensureRemoteRoot(ctx context.Context, root string) error {
	exists, err := e.remote.Exists(ctx, root)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrRemoteRootUnavailable, root, err)
	}

	if exists {
		return nil
	}

	if err := e.remote.MakeDir(ctx, root); err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrRemoteRootUnavailable, root, err)
	}

	return nil
}

// conflictFunc builds the conflict chain: policy hook, else the caller's
// fallback, else skip.
func (e *Engine) conflictFunc(ctx context.Context, hooks *Hooks, hc HookContext, fallback func(string, FileRecord, FileRecord) Decision) ConflictFunc {
	switch {
	case hooks.hasConflictHook():
		return func(local, remote FileRecord) Decision {
			return hooks.resolveConflict(ctx, local, remote, hc)
		}
	case fallback != nil:
		return func(local, remote FileRecord) Decision {
			return fallback(local.RelPath, local, remote)
		}
	default:
		return nil
	}
}
