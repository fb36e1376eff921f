package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// baseTime is minute aligned so offsets below read naturally.
const baseTime int64 = 1_759_999_980

const remoteRoot = "/sdcard/Sync"

type hooksFactory map[string]*Hooks

func (f hooksFactory) New(name string, _ map[string]any) (*Hooks, error) {
	h, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownPolicy, name)
	}

	return h, nil
}

func newTestEngine(remote Remote, policies PolicyFactory) *Engine {
	e := New(remote, policies, quietLogger)
	e.now = func() time.Time { return time.Unix(baseTime+2*3600, 0) }

	return e
}

func testSpec(t *testing.T, dir Direction) SyncSpec {
	t.Helper()

	return SyncSpec{
		Name:      "test",
		Local:     t.TempDir(),
		Remote:    remoteRoot,
		Direction: dir,
	}
}

func localSize(t *testing.T, root, rel string) int64 {
	t.Helper()

	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)

	return info.Size()
}

// --- Scenarios ---

func TestRun_PushNewFile(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	writeLocal(t, spec.Local, "a.txt", 100, baseTime)

	remote := newFakeRemote(remoteRoot)
	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 1, stats.Operations)
	assert.Equal(t, 0, stats.Downloaded)
	assert.Equal(t, []string{remoteRoot + "/a.txt"}, remote.pushes)
	assert.Len(t, remote.files[remoteRoot+"/a.txt"].data, 100)
}

func TestRun_PullStaleLocal(t *testing.T) {
	spec := testSpec(t, DirectionPull)
	writeLocal(t, spec.Local, "b.txt", 50, baseTime)

	remote := newFakeRemote(remoteRoot)
	remote.put(remoteRoot+"/b.txt", 80, baseTime+3600)

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 1, stats.Operations)
	assert.Equal(t, int64(80), localSize(t, spec.Local, "b.txt"))
}

func TestRun_BidirectionalConflictPolicyKeepsRemote(t *testing.T) {
	spec := testSpec(t, DirectionBidirectional)
	spec.Policy = "remote_wins"
	writeLocal(t, spec.Local, "c.txt", 10, baseTime)

	remote := newFakeRemote(remoteRoot)
	remote.put(remoteRoot+"/c.txt", 20, baseTime+120)

	calls := 0
	factory := hooksFactory{"remote_wins": {
		ResolveConflict: func(_ context.Context, local, rem FileRecord, _ HookContext) (Decision, error) {
			calls++
			assert.Equal(t, "c.txt", local.RelPath)
			assert.Equal(t, int64(20), rem.Size)

			return DecisionKeepRemote, nil
		},
	}}

	fallbackCalled := false
	stats, err := newTestEngine(remote, factory).Run(context.Background(), spec, RunOptions{
		Conflict: func(string, FileRecord, FileRecord) Decision {
			fallbackCalled = true
			return DecisionKeepLocal
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.False(t, fallbackCalled, "policy hook takes precedence over the caller fallback")
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 0, stats.Uploaded)
	assert.Empty(t, remote.pushes)
	assert.Equal(t, int64(20), localSize(t, spec.Local, "c.txt"))
}

func TestRun_ExcludedExtensionNeverSynced(t *testing.T) {
	spec := testSpec(t, DirectionBidirectional)
	spec.ExcludeExtensions = []string{"tmp"}

	remote := newFakeRemote(remoteRoot)

	writeLocal(t, spec.Local, "same.md", 5, baseTime)
	remote.put(remoteRoot+"/same.md", 5, baseTime)

	writeLocal(t, spec.Local, "scratch.tmp", 1, baseTime)
	remote.put(remoteRoot+"/scratch.tmp", 999, baseTime+7200)
	remote.put(remoteRoot+"/only-remote.tmp", 3, baseTime)

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Operations)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, remote.pushes)
	assert.Empty(t, remote.pulls)
}

func TestRun_DegradedRemoteListing(t *testing.T) {
	spec := testSpec(t, DirectionPull)

	remote := newFakeRemote(remoteRoot)
	remote.shallowOnly = true
	remote.put(remoteRoot+"/top.txt", 4, baseTime)
	remote.put(remoteRoot+"/sub/deep.txt", 4, baseTime)

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)

	assert.True(t, stats.Degraded)
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, []string{remoteRoot + "/top.txt"}, remote.pulls)
	assert.NoFileExists(t, filepath.Join(spec.Local, "sub", "deep.txt"))
}

func TestRun_EmptyRemoteIsNotDegraded(t *testing.T) {
	spec := testSpec(t, DirectionPull)

	remote := newFakeRemote(remoteRoot)
	remote.shallowOnly = true

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)
	assert.False(t, stats.Degraded)
	assert.Equal(t, 0, stats.Operations)
}

// --- Idempotence ---

func TestRun_Idempotent(t *testing.T) {
	for _, dir := range []Direction{DirectionPush, DirectionPull, DirectionBidirectional} {
		t.Run(string(dir), func(t *testing.T) {
			spec := testSpec(t, dir)
			remote := newFakeRemote(remoteRoot)

			writeLocal(t, spec.Local, "local-only.md", 10, baseTime)
			writeLocal(t, spec.Local, "notes/nested.md", 11, baseTime+30)
			remote.put(remoteRoot+"/remote-only.md", 12, baseTime)
			remote.put(remoteRoot+"/deep/a/b.md", 13, baseTime+45)

			writeLocal(t, spec.Local, "local-newer.md", 14, baseTime+600)
			remote.put(remoteRoot+"/local-newer.md", 15, baseTime)

			writeLocal(t, spec.Local, "remote-newer.md", 16, baseTime)
			remote.put(remoteRoot+"/remote-newer.md", 17, baseTime+600)

			eng := newTestEngine(remote, nil)
			opts := RunOptions{
				Conflict: func(string, FileRecord, FileRecord) Decision { return DecisionKeepRemote },
			}

			first, err := eng.Run(context.Background(), spec, opts)
			require.NoError(t, err)
			assert.Positive(t, first.Operations)
			assert.Equal(t, 0, first.Errored)

			second, err := eng.Run(context.Background(), spec, opts)
			require.NoError(t, err)
			assert.Equal(t, 0, second.Operations)
			assert.Equal(t, 0, second.Uploaded+second.Downloaded)
		})
	}
}

// --- Setup errors ---

func TestRun_LocalRootMissing(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Local = filepath.Join(spec.Local, "missing")

	stats, err := newTestEngine(newFakeRemote(remoteRoot), nil).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrLocalRootMissing)
	assert.Equal(t, Stats{}, stats)
}

func TestRun_LocalRootMissingSkipsStartHook(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Local = filepath.Join(spec.Local, "missing")
	spec.Policy = "dated"

	started := false
	factory := hooksFactory{"dated": {
		OnStart: func(context.Context, HookContext) error {
			started = true
			return nil
		},
	}}

	remote := newFakeRemote("/sdcard")

	_, err := newTestEngine(remote, factory).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrLocalRootMissing)
	assert.False(t, started)
	assert.Empty(t, remote.mkdirs)
}

func TestRun_UnknownDirection(t *testing.T) {
	spec := testSpec(t, Direction("upload-ish"))
	writeLocal(t, spec.Local, "a.txt", 3, baseTime)

	remote := newFakeRemote(remoteRoot)

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrInvalidSpec)
	assert.Contains(t, err.Error(), "upload-ish")
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, remote.pushes)
}

func TestRun_RemoteRootCreatedWhenMissing(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	writeLocal(t, spec.Local, "a.txt", 1, baseTime)

	remote := newFakeRemote("/sdcard")

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Contains(t, remote.mkdirs, remoteRoot)
}

func TestRun_RemoteRootUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	remote.EXPECT().Exists(gomock.Any(), remoteRoot).Return(false, nil)
	remote.EXPECT().MakeDir(gomock.Any(), remoteRoot).Return(errors.New("read-only file system"))

	_, err := newTestEngine(remote, nil).Run(context.Background(), testSpec(t, DirectionPush), RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrRemoteRootUnavailable)
	assert.Contains(t, err.Error(), "read-only file system")
}

func TestRun_RemoteExistsTransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	remote.EXPECT().Exists(gomock.Any(), remoteRoot).Return(false, apperrors.ErrCommandTimeout)

	_, err := newTestEngine(remote, nil).Run(context.Background(), testSpec(t, DirectionPush), RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrRemoteRootUnavailable)
	require.ErrorIs(t, err, apperrors.ErrCommandTimeout)
}

func TestRun_InventoryErrorIsFatal(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	writeLocal(t, spec.Local, "a.txt", 1, baseTime)

	remote := newFakeRemote(remoteRoot)
	remote.listErr = apperrors.ErrNoDevice

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrInventory)
	require.ErrorIs(t, err, apperrors.ErrNoDevice)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, remote.pushes)
}

func TestRun_UnknownPolicy(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Policy = "nope"

	_, err := newTestEngine(newFakeRemote(remoteRoot), hooksFactory{}).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrUnknownPolicy)
}

func TestRun_PolicyWithoutRegistry(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Policy = "date_interval"

	_, err := newTestEngine(newFakeRemote(remoteRoot), nil).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrUnknownPolicy)
}

func TestRun_ResolvePathsFailureIsFatal(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Policy = "broken"

	var gotErr error

	factory := hooksFactory{"broken": {
		ResolvePaths: func(context.Context, HookContext) (string, string, error) {
			return "", "", errors.New("bad date format")
		},
		OnError: func(_ context.Context, _ HookContext, runErr error) error {
			gotErr = runErr
			return nil
		},
	}}

	_, err := newTestEngine(newFakeRemote(remoteRoot), factory).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrPathResolution)
	require.ErrorIs(t, gotErr, apperrors.ErrPathResolution)
}

func TestRun_ResolvePathsPanicIsFatal(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Policy = "panics"

	factory := hooksFactory{"panics": {
		ResolvePaths: func(context.Context, HookContext) (string, string, error) {
			panic("boom")
		},
	}}

	_, err := newTestEngine(newFakeRemote(remoteRoot), factory).Run(context.Background(), spec, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrPathResolution)
	assert.Contains(t, err.Error(), "boom")
}

// --- Policy hooks ---

func TestRun_ResolvePathsRedirectsRemoteRoot(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Policy = "dated"
	writeLocal(t, spec.Local, "photo.jpg", 3, baseTime)

	factory := hooksFactory{"dated": {
		ResolvePaths: func(_ context.Context, hc HookContext) (string, string, error) {
			return hc.Spec.Local, hc.Spec.Remote + "/10-01", nil
		},
	}}

	remote := newFakeRemote(remoteRoot)

	stats, err := newTestEngine(remote, factory).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, []string{remoteRoot + "/10-01/photo.jpg"}, remote.pushes)
}

func TestRun_FailingHooksFallBackToDefaults(t *testing.T) {
	spec := testSpec(t, DirectionBidirectional)
	spec.Policy = "flaky"

	writeLocal(t, spec.Local, "keep.md", 5, baseTime)
	writeLocal(t, spec.Local, "conflict.md", 5, baseTime)

	remote := newFakeRemote(remoteRoot)
	remote.put(remoteRoot+"/conflict.md", 9, baseTime+300)

	endCalled := false
	factory := hooksFactory{"flaky": {
		OnStart: func(context.Context, HookContext) error { panic("start") },
		FilterFile: func(context.Context, FileRecord, HookContext) (bool, error) {
			return false, errors.New("filter exploded")
		},
		ResolveConflict: func(context.Context, FileRecord, FileRecord, HookContext) (Decision, error) {
			panic("conflict")
		},
		OnEnd: func(_ context.Context, _ HookContext, stats Stats) error {
			endCalled = true
			assert.Equal(t, 1, stats.Uploaded)

			return errors.New("end failed")
		},
	}}

	stats, err := newTestEngine(remote, factory).Run(context.Background(), spec, RunOptions{
		Conflict: func(string, FileRecord, FileRecord) Decision { return DecisionKeepLocal },
	})
	require.NoError(t, err)

	// keep.md survived the failing filter, conflict.md was skipped.
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 0, stats.Downloaded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []string{remoteRoot + "/keep.md"}, remote.pushes)
	assert.True(t, endCalled)
}

func TestRun_PolicyFilterVetoes(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Policy = "no_drafts"

	writeLocal(t, spec.Local, "draft-1.md", 1, baseTime)
	writeLocal(t, spec.Local, "final.md", 1, baseTime)

	factory := hooksFactory{"no_drafts": {
		FilterFile: func(_ context.Context, rec FileRecord, _ HookContext) (bool, error) {
			return filepath.Base(rec.RelPath) != "draft-1.md", nil
		},
	}}

	remote := newFakeRemote(remoteRoot)

	stats, err := newTestEngine(remote, factory).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, []string{remoteRoot + "/final.md"}, remote.pushes)
}

func TestRun_ConflictFallbackReceivesPath(t *testing.T) {
	spec := testSpec(t, DirectionBidirectional)
	writeLocal(t, spec.Local, "dir/x.md", 1, baseTime)

	remote := newFakeRemote(remoteRoot)
	remote.put(remoteRoot+"/dir/x.md", 2, baseTime+60)

	var paths []string

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{
		Conflict: func(rel string, _, _ FileRecord) Decision {
			paths = append(paths, rel)
			return DecisionSkip
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/x.md"}, paths)
	assert.Equal(t, 0, stats.Operations)
	assert.Equal(t, 1, stats.Skipped)
}

func TestRun_SpecIsSnapshotted(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	spec.Policy = "mutator"
	spec.Ignore = []string{"*.bak"}
	spec.PolicyConfig = map[string]any{"k": "v"}

	factory := hooksFactory{"mutator": {
		OnStart: func(_ context.Context, hc HookContext) error {
			hc.Spec.Ignore[0] = "changed"
			hc.Spec.PolicyConfig["k"] = "changed"

			return nil
		},
	}}

	_, err := newTestEngine(newFakeRemote(remoteRoot), factory).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"*.bak"}, spec.Ignore)
	assert.Equal(t, "v", spec.PolicyConfig["k"])
}

// --- Execution ---

func TestRun_PerItemFailuresCounted(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	writeLocal(t, spec.Local, "a.txt", 1, baseTime)
	writeLocal(t, spec.Local, "b.txt", 1, baseTime)
	writeLocal(t, spec.Local, "c.txt", 1, baseTime)

	remote := newFakeRemote(remoteRoot)
	remote.failPush[remoteRoot+"/b.txt"] = true

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Uploaded)
	assert.Equal(t, 1, stats.Errored)
	assert.Equal(t, 3, stats.Operations)
}

func TestRun_ProgressInIndexOrder(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	for _, name := range []string{"c.txt", "a.txt", "b/b.txt"} {
		writeLocal(t, spec.Local, name, 2048, baseTime)
	}

	var (
		indices []int
		descs   []string
	)

	_, err := newTestEngine(newFakeRemote(remoteRoot), nil).Run(context.Background(), spec, RunOptions{
		Progress: func(desc string, index, total int) {
			assert.Equal(t, 3, total)

			indices = append(indices, index)
			descs = append(descs, desc)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, indices)
	assert.Equal(t, "push a.txt (2.0 kB)", descs[0])
	assert.Equal(t, "push b/b.txt (2.0 kB)", descs[1])
}

func TestRun_StopFlagEndsRunBetweenOperations(t *testing.T) {
	spec := testSpec(t, DirectionPush)
	for _, name := range []string{"1.txt", "2.txt", "3.txt"} {
		writeLocal(t, spec.Local, name, 1, baseTime)
	}

	stop := &StopFlag{}
	remote := newFakeRemote(remoteRoot)

	stats, err := newTestEngine(remote, nil).Run(context.Background(), spec, RunOptions{
		Stop: stop,
		Progress: func(_ string, index, _ int) {
			if index == 0 {
				stop.Stop()
			}
		},
	})
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 3, stats.Operations)
	assert.Len(t, remote.pushes, 1)
}

func TestStopFlag(t *testing.T) {
	var nilFlag *StopFlag
	nilFlag.Stop()
	assert.False(t, nilFlag.Stopped())

	f := &StopFlag{}
	assert.False(t, f.Stopped())
	f.Stop()
	assert.True(t, f.Stopped())
	f.Reset()
	assert.False(t, f.Stopped())
}
