// Package daemon turns device attachment and local file changes into
// scheduled runs of auto-sync pipelines.
package daemon

import (
	"github.com/alexjbarnes/adb-sync/internal/config"
	"github.com/alexjbarnes/adb-sync/internal/scheduler"
)

// Queue is the subset of the scheduler the daemon needs.
type Queue interface {
	Submit(req scheduler.Request, listener scheduler.Listener) (*scheduler.Ticket, error)
	Running() string
}

// PipelineSource returns the current pipeline list. It is called on each
// trigger so edits to the pipelines file apply without a restart.
type PipelineSource func() ([]config.Pipeline, error)

// autoSyncFor returns the enabled auto-sync pipelines that may run
// against serial. Pipelines pinned to another device are excluded.
func autoSyncFor(pipelines []config.Pipeline, serial string) []config.Pipeline {
	var out []config.Pipeline

	for _, p := range pipelines {
		if !p.IsEnabled() || !p.AutoSync {
			continue
		}

		if p.Serial != "" && p.Serial != serial {
			continue
		}

		out = append(out, p)
	}

	return out
}
