package main

import (
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/adb-sync/internal/adb"
	"github.com/alexjbarnes/adb-sync/internal/config"
	"github.com/alexjbarnes/adb-sync/internal/logging"
	"github.com/alexjbarnes/adb-sync/internal/policy"
	"github.com/alexjbarnes/adb-sync/internal/state"
)

// adbRunner executes adb. Tests replace it.
var adbRunner adb.Runner = adb.ExecRunner{}

// app carries what every command needs after configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logging.NewLogger(cfg.Environment),
	}, nil
}

func (a *app) adbOptions() adb.Options {
	return adb.Options{
		Path:            a.cfg.ADBPath,
		CommandTimeout:  a.cfg.CommandTimeout,
		ListTimeout:     a.cfg.ListTimeout,
		TransferTimeout: a.cfg.TransferTimeout,
	}
}

func (a *app) bridge() *adb.Bridge {
	return adb.NewBridge(adbRunner, a.cfg.ADBSerial, a.adbOptions(), a.logger)
}

func (a *app) openState() (*state.State, error) {
	st, err := state.Load(a.cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	st.SetHistoryLimit(a.cfg.HistoryLimit)

	return st, nil
}

func (a *app) loadPipelines() (*config.Pipelines, error) {
	ps, err := config.LoadPipelines(a.cfg.PipelinesFile)
	if err != nil {
		return nil, fmt.Errorf("loading pipelines: %w", err)
	}

	return ps, nil
}

func (a *app) pipelineSource() func() ([]config.Pipeline, error) {
	return func() ([]config.Pipeline, error) {
		ps, err := a.loadPipelines()
		if err != nil {
			return nil, err
		}

		return ps.Pipelines, nil
	}
}

func (a *app) newRunner(bridge *adb.Bridge, conflict conflictChoice) *pipelineRunner {
	return &pipelineRunner{
		pipelines: a.pipelineSource(),
		bridge:    bridge,
		policies:  policy.Default(),
		conflict:  conflict,
		logger:    a.logger,
	}
}
