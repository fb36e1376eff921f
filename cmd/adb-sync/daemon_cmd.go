package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alexjbarnes/adb-sync/internal/daemon"
	"github.com/alexjbarnes/adb-sync/internal/engine"
	"github.com/alexjbarnes/adb-sync/internal/mcpserver"
	"github.com/alexjbarnes/adb-sync/internal/scheduler"
	"github.com/alexjbarnes/adb-sync/internal/server"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Watch for devices and local changes and run auto-sync pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			a.logger.Info("adb-sync daemon starting",
				slog.String("version", Version),
				slog.String("pipelines", a.cfg.PipelinesFile),
				slog.String("state", a.cfg.StateDir),
			)

			ps, err := a.loadPipelines()
			if err != nil {
				return err
			}

			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			bridge := a.bridge()

			sched := scheduler.New(a.newRunner(bridge, conflictChoice(engine.DecisionSkip)), st, a.cfg.StateDir, a.logger)
			sched.Start(cmd.Context())
			defer sched.Close()

			poller := daemon.NewPoller(bridge, st, sched, a.pipelineSource(), daemon.PollerConfig{
				Preferred: a.cfg.ADBSerial,
				Interval:  a.cfg.DevicePollInterval,
				Cooldown:  a.cfg.AutoSyncCooldown,
			}, a.logger)

			watcher := daemon.NewWatcher(sched, poller.Connected, a.cfg.WatchDebounce, a.logger)

			g, gctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return poller.Run(gctx)
			})

			g.Go(func() error {
				return watcher.Watch(gctx, ps.Pipelines)
			})

			if addr := a.cfg.MCPListenAddr; addr != "" {
				mcpServer := mcp.NewServer(
					&mcp.Implementation{Name: "adb-sync", Version: Version},
					nil,
				)
				mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
					Queue:     sched,
					History:   st,
					Devices:   bridge,
					Pipelines: a.pipelineSource(),
				})

				handler := server.NewMux(server.MuxConfig{MCPServer: mcpServer, Logger: a.logger})

				g.Go(func() error {
					return server.Serve(gctx, addr, handler, a.logger)
				})
			}

			defer a.logger.Info("adb-sync daemon stopped")

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}
}
