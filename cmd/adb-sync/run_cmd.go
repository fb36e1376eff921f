package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/adb-sync/internal/config"
	"github.com/alexjbarnes/adb-sync/internal/engine"
	"github.com/alexjbarnes/adb-sync/internal/scheduler"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	var keepLocal, keepRemote bool

	cmd := &cobra.Command{
		Use:   "run [pipeline...]",
		Short: "Run pipelines now",
		Long: "Run the named pipelines one after another, or every enabled pipeline when none are named.\n" +
			"Conflicts not decided by a pipeline's policy are skipped unless --keep-local or --keep-remote is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ps, err := a.loadPipelines()
			if err != nil {
				return err
			}

			names, err := selectPipelines(ps, args)
			if err != nil {
				return err
			}

			choice := conflictChoice(engine.DecisionSkip)
			switch {
			case keepLocal:
				choice = conflictChoice(engine.DecisionKeepLocal)
			case keepRemote:
				choice = conflictChoice(engine.DecisionKeepRemote)
			}

			// History is best effort: a running daemon holds the database.
			var recorder scheduler.Recorder

			st, err := a.openState()
			if err != nil {
				a.logger.Warn("run history unavailable", slog.String("error", err.Error()))
			} else {
				defer st.Close()
				recorder = st
			}

			bridge := a.bridge()
			if bridge.Serial() == "" {
				if _, err := bridge.SelectFirst(cmd.Context()); err != nil {
					return fmt.Errorf("listing devices: %w", err)
				}
			}

			sched := scheduler.New(a.newRunner(bridge, choice), recorder, a.cfg.StateDir, a.logger)
			sched.Start(cmd.Context())
			defer sched.Close()

			return runAll(cmd, sched, names)
		},
	}

	cmd.Flags().BoolVar(&keepLocal, "keep-local", false, "Resolve undecided conflicts by keeping the local copy")
	cmd.Flags().BoolVar(&keepRemote, "keep-remote", false, "Resolve undecided conflicts by keeping the device copy")
	cmd.MarkFlagsMutuallyExclusive("keep-local", "keep-remote")

	return cmd
}

// selectPipelines validates the requested names, or returns every
// enabled pipeline when none were requested.
func selectPipelines(ps *config.Pipelines, args []string) ([]string, error) {
	if len(args) == 0 {
		for _, p := range ps.Enabled() {
			args = append(args, p.Name)
		}

		if len(args) == 0 {
			return nil, errors.New("no enabled pipelines; add one with 'adb-sync pipelines add'")
		}

		return args, nil
	}

	for _, name := range args {
		if _, err := ps.Find(name); err != nil {
			return nil, err
		}
	}

	return args, nil
}

// runAll submits every name and waits for all of them. Output is written
// only from listener callbacks, which run on the scheduler's worker.
func runAll(cmd *cobra.Command, sched *scheduler.Scheduler, names []string) error {
	out := &lockedWriter{w: cmd.OutOrStdout()}

	var tickets []*scheduler.Ticket

	for _, name := range names {
		t, err := sched.Submit(scheduler.Request{Pipeline: name, Trigger: scheduler.TriggerManual}, printEvents(out))
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", name, err)
			continue
		}

		tickets = append(tickets, t)
	}

	failed := len(names) - len(tickets)

	for _, t := range tickets {
		if _, err := t.Wait(cmd.Context()); err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(names))
	}

	return nil
}

func printEvents(out io.Writer) scheduler.Listener {
	return func(ev scheduler.Event) {
		switch ev.Kind {
		case scheduler.EventProgress:
			fmt.Fprintf(out, "[%s] %d/%d %s\n", ev.Pipeline, ev.Index+1, ev.Total, ev.Description)
		case scheduler.EventDone:
			fmt.Fprintln(out, formatSummary(ev.Pipeline, ev.Stats))

			if ev.Stats.Degraded {
				fmt.Fprintf(out, "[%s] warning: the device could not list recursively; only top-level remote files were compared\n", ev.Pipeline)
			}
		case scheduler.EventFailed:
			fmt.Fprintf(out, "[%s] failed: %v\n", ev.Pipeline, ev.Err)
		}
	}
}

func formatSummary(name string, s engine.Stats) string {
	line := fmt.Sprintf("[%s] %d uploaded, %d downloaded, %d skipped, %d failed",
		name, s.Uploaded, s.Downloaded, s.Skipped, s.Errored)

	if s.Cancelled {
		done := s.Uploaded + s.Downloaded + s.Errored
		line += fmt.Sprintf(" (stopped after %d of %d)", done, s.Operations)
	}

	return line
}

// lockedWriter serializes writes from the worker and the caller.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}
