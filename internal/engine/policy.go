package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// HookContext is handed to every policy hook. Spec is a snapshot; hooks
// never see the inventories or the operation list.
type HookContext struct {
	Remote Remote
	Logger *slog.Logger
	Spec   SyncSpec
}

// Hooks is an extension policy. Every field is optional and a nil field
// falls back to its default:
//
//   - ResolvePaths: spec.Local and spec.Remote unchanged
//   - FilterFile: accept every file
//   - ResolveConflict: defer to the caller's fallback, then skip
//   - OnStart, OnEnd, OnError: no-op
//
// A hook that returns an error or panics is logged and treated as if it
// returned the default, except ResolvePaths, whose failure aborts the run.
type Hooks struct {
	ResolvePaths    func(ctx context.Context, hc HookContext) (local, remote string, err error)
	FilterFile      func(ctx context.Context, rec FileRecord, hc HookContext) (bool, error)
	ResolveConflict func(ctx context.Context, local, remote FileRecord, hc HookContext) (Decision, error)
	OnStart         func(ctx context.Context, hc HookContext) error
	OnEnd           func(ctx context.Context, hc HookContext, stats Stats) error
	OnError         func(ctx context.Context, hc HookContext, runErr error) error
}

// PolicyFactory builds a policy by registered name. The registry in
// internal/policy satisfies it.
type PolicyFactory interface {
	New(name string, cfg map[string]any) (*Hooks, error)
}

// recoverHook converts a panic inside a hook into an error.
func recoverHook(name string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s hook panicked: %v", name, r)
	}
}

func (h *Hooks) resolvePaths(ctx context.Context, hc HookContext) (local, remote string, err error) {
	if h == nil || h.ResolvePaths == nil {
		return hc.Spec.Local, hc.Spec.Remote, nil
	}

	defer recoverHook("resolve_paths", &err)

	return h.ResolvePaths(ctx, hc)
}

func (h *Hooks) filterFile(ctx context.Context, rec FileRecord, hc HookContext) bool {
	if h == nil || h.FilterFile == nil {
		return true
	}

	keep, err := func() (keep bool, err error) {
		defer recoverHook("filter_file", &err)
		return h.FilterFile(ctx, rec, hc)
	}()
	if err != nil {
		hc.Logger.Warn("policy filter failed, keeping file",
			slog.String("path", rec.RelPath),
			slog.String("error", err.Error()),
		)

		return true
	}

	return keep
}

func (h *Hooks) hasConflictHook() bool {
	return h != nil && h.ResolveConflict != nil
}

func (h *Hooks) resolveConflict(ctx context.Context, local, remote FileRecord, hc HookContext) Decision {
	d, err := func() (d Decision, err error) {
		defer recoverHook("resolve_conflict", &err)
		return h.ResolveConflict(ctx, local, remote, hc)
	}()
	if err != nil {
		hc.Logger.Warn("policy conflict resolution failed, skipping",
			slog.String("path", local.RelPath),
			slog.String("error", err.Error()),
		)

		return DecisionSkip
	}

	return d
}

func (h *Hooks) onStart(ctx context.Context, hc HookContext) {
	if h == nil || h.OnStart == nil {
		return
	}

	err := func() (err error) {
		defer recoverHook("on_start", &err)
		return h.OnStart(ctx, hc)
	}()
	if err != nil {
		hc.Logger.Warn("policy on_start hook failed", slog.String("error", err.Error()))
	}
}

func (h *Hooks) onEnd(ctx context.Context, hc HookContext, stats Stats) {
	if h == nil || h.OnEnd == nil {
		return
	}

	err := func() (err error) {
		defer recoverHook("on_end", &err)
		return h.OnEnd(ctx, hc, stats)
	}()
	if err != nil {
		hc.Logger.Warn("policy on_end hook failed", slog.String("error", err.Error()))
	}
}

func (h *Hooks) onError(ctx context.Context, hc HookContext, runErr error) {
	if h == nil || h.OnError == nil {
		return
	}

	err := func() (err error) {
		defer recoverHook("on_error", &err)
		return h.OnError(ctx, hc, runErr)
	}()
	if err != nil {
		hc.Logger.Warn("policy on_error hook failed", slog.String("error", err.Error()))
	}
}
