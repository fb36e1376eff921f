package policy

import (
	"context"
	"strings"

	"github.com/alexjbarnes/adb-sync/internal/engine"
)

// Names of the conflict and filter policies.
const (
	PreferRemoteName = "prefer_remote"
	PreferLocalName  = "prefer_local"
	SkipHiddenName   = "skip_hidden"
)

// PreferRemote answers every bidirectional conflict with keep_remote.
func PreferRemote(map[string]any) (*engine.Hooks, error) {
	return preferring(engine.DecisionKeepRemote), nil
}

// PreferLocal answers every bidirectional conflict with keep_local.
func PreferLocal(map[string]any) (*engine.Hooks, error) {
	return preferring(engine.DecisionKeepLocal), nil
}

func preferring(d engine.Decision) *engine.Hooks {
	return &engine.Hooks{
		ResolveConflict: func(context.Context, engine.FileRecord, engine.FileRecord, engine.HookContext) (engine.Decision, error) {
			return d, nil
		},
	}
}

// SkipHidden drops files whose path has any dot-prefixed segment, such
// as .thumbnails or .trashed-* entries Android leaves behind.
func SkipHidden(map[string]any) (*engine.Hooks, error) {
	return &engine.Hooks{
		FilterFile: func(_ context.Context, rec engine.FileRecord, _ engine.HookContext) (bool, error) {
			for _, seg := range strings.Split(rec.RelPath, "/") {
				if strings.HasPrefix(seg, ".") {
					return false, nil
				}
			}

			return true, nil
		},
	}, nil
}
