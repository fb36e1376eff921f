package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/adb-sync/internal/adb"
	"github.com/alexjbarnes/adb-sync/internal/config"
	"github.com/alexjbarnes/adb-sync/internal/engine"
	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"github.com/alexjbarnes/adb-sync/internal/scheduler"
)

// conflictChoice is the answer given to conflicts the pipeline's policy
// does not decide. The zero value skips them.
type conflictChoice engine.Decision

func (c conflictChoice) resolver() func(string, engine.FileRecord, engine.FileRecord) engine.Decision {
	if engine.Decision(c) == engine.DecisionSkip {
		return nil
	}

	return func(string, engine.FileRecord, engine.FileRecord) engine.Decision {
		return engine.Decision(c)
	}
}

// pipelineRunner resolves a pipeline by name and runs it against the
// device selected when the run starts.
type pipelineRunner struct {
	pipelines func() ([]config.Pipeline, error)
	bridge    *adb.Bridge
	policies  engine.PolicyFactory
	conflict  conflictChoice
	logger    *slog.Logger
}

var _ scheduler.Runner = (*pipelineRunner)(nil)

func (r *pipelineRunner) Run(ctx context.Context, req scheduler.Request, opts engine.RunOptions) (scheduler.Result, error) {
	pipelines, err := r.pipelines()
	if err != nil {
		return scheduler.Result{}, err
	}

	ps := &config.Pipelines{Pipelines: pipelines}

	p, err := ps.Find(req.Pipeline)
	if err != nil {
		return scheduler.Result{}, err
	}

	spec, err := p.Spec()
	if err != nil {
		return scheduler.Result{}, err
	}

	// The client is a snapshot; a selection change mid-run does not
	// redirect it.
	client := r.bridge.Current()
	if p.Serial != "" {
		client = r.bridge.Client(p.Serial)
	}

	res := scheduler.Result{Serial: client.Serial(), Direction: string(spec.Direction)}

	if client.Serial() == "" {
		return res, fmt.Errorf("pipeline %s: %w", p.Name, apperrors.ErrNoDevice)
	}

	opts.Conflict = r.conflict.resolver()
	opts.Logger = r.logger.With(
		slog.String("serial", client.Serial()),
		slog.String("trigger", req.Trigger),
	)

	eng := engine.New(client, r.policies, r.logger)

	res.Stats, err = eng.Run(ctx, spec, opts)

	return res, err
}
