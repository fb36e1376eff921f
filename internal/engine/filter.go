package engine

import (
	"context"
	"sync"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	secondsPerDay = 24 * 60 * 60

	// mtimeGranularity is the resolution used by IsSame. Remote listings
	// commonly truncate timestamps to whole minutes.
	mtimeGranularity = 60
)

// Filter applies the per-run admission rules to candidate files from
// either side, in a fixed order, stopping at the first rejection:
//
//  1. age: older than the retention window
//  2. extension: include set, then exclude set
//  3. ignore patterns (gitignore syntax)
//  4. policy filter hook
type Filter struct {
	now     int64
	window  int64
	include map[string]struct{}
	exclude map[string]struct{}
	ignore  *gitignore.GitIgnore

	// hook is the policy veto. Inventories may be collected concurrently,
	// so calls are serialized.
	hook   func(ctx context.Context, rec FileRecord) bool
	hookMu sync.Mutex
}

// NewFilter builds the filter for one run. hook may be nil.
func NewFilter(spec SyncSpec, now time.Time, hook func(ctx context.Context, rec FileRecord) bool) *Filter {
	f := &Filter{
		now:  now.Unix(),
		hook: hook,
	}

	if spec.SyncDays > 0 {
		f.window = int64(spec.SyncDays) * secondsPerDay
	}

	f.include = extensionSet(spec.IncludeExtensions)
	f.exclude = extensionSet(spec.ExcludeExtensions)

	if len(spec.Ignore) > 0 {
		f.ignore = gitignore.CompileIgnoreLines(spec.Ignore...)
	}

	return f
}

func extensionSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if e = NormalizeExtension(e); e != "" {
			set[e] = struct{}{}
		}
	}

	if len(set) == 0 {
		return nil
	}

	return set
}

// Allow reports whether rec belongs in the inventory.
func (f *Filter) Allow(ctx context.Context, rec FileRecord) bool {
	if f.window > 0 && f.now-rec.ModTime > f.window {
		return false
	}

	ext := extension(rec.RelPath)
	if f.include != nil {
		if _, ok := f.include[ext]; !ok {
			return false
		}
	}

	if f.exclude != nil {
		if _, ok := f.exclude[ext]; ok {
			return false
		}
	}

	if f.ignore != nil && f.ignore.MatchesPath(rec.RelPath) {
		return false
	}

	if f.hook == nil {
		return true
	}

	f.hookMu.Lock()
	defer f.hookMu.Unlock()

	return f.hook(ctx, rec)
}

// IsSame reports whether two records describe the same content for sync
// purposes: equal size and equal modification minute. Files that differ
// by less than a minute within the same floored minute and have equal size
// are treated as unchanged. This is a known precision limit of remote
// timestamp sources.
func IsSame(local, remote FileRecord) bool {
	if local.Size != remote.Size {
		return false
	}

	return floorDiv(local.ModTime, mtimeGranularity) == floorDiv(remote.ModTime, mtimeGranularity)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}
