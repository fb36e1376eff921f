package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alexjbarnes/adb-sync/internal/config"
	"github.com/alexjbarnes/adb-sync/internal/state"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPipelinesCmd())
}

func newPipelinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pipelines",
		Aliases: []string{"pl"},
		Short:   "List and edit pipelines",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ps, err := a.loadPipelines()
			if err != nil {
				return err
			}

			// Last-run times are optional; a running daemon holds the database.
			var st *state.State
			if s, err := a.openState(); err == nil {
				defer s.Close()
				st = s
			}

			return printPipelines(cmd.OutOrStdout(), ps, st)
		},
	}

	cmd.AddCommand(newPipelinesAddCmd(), newPipelinesRemoveCmd(),
		newPipelinesToggleCmd("enable", true), newPipelinesToggleCmd("disable", false))

	return cmd
}

func printPipelines(out io.Writer, ps *config.Pipelines, st *state.State) error {
	if len(ps.Pipelines) == 0 {
		_, err := fmt.Fprintln(out, "no pipelines configured")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIRECTION\tLOCAL\tREMOTE\tAUTO\tENABLED\tLAST RUN")

	for _, p := range ps.Pipelines {
		last := "never"

		if st != nil {
			if r, err := st.LastRun(p.Name); err == nil && r != nil {
				last = humanize.Time(r.FinishedAt)
				if r.Failed() {
					last += " (failed)"
				}
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name, p.Direction, p.Local, p.Remote, yesNo(p.AutoSync), yesNo(p.IsEnabled()), last)
	}

	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

func newPipelinesAddCmd() *cobra.Command {
	var (
		p            config.Pipeline
		policyConfig map[string]string
		disabled     bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ps, err := a.loadPipelines()
			if err != nil {
				return err
			}

			if len(policyConfig) > 0 {
				p.PolicyConfig = make(map[string]any, len(policyConfig))
				for k, v := range policyConfig {
					p.PolicyConfig[k] = v
				}
			}

			if disabled {
				enabled := false
				p.Enabled = &enabled
			}

			if err := ps.Add(p); err != nil {
				return err
			}

			if err := ps.Save(a.cfg.PipelinesFile); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "added pipeline %s\n", p.Name)

			return nil
		},
	}

	f := cmd.Flags()
	f.SortFlags = false
	f.StringVar(&p.Name, "name", "", "Pipeline name")
	f.StringVar(&p.Local, "local", "", "Local directory")
	f.StringVar(&p.Remote, "remote", "", "Directory on the device")
	f.StringVar(&p.Direction, "direction", "push", "push, pull or bidirectional")
	f.StringSliceVar(&p.IncludeExtensions, "include", nil, "Only sync these extensions")
	f.StringSliceVar(&p.ExcludeExtensions, "exclude", nil, "Never sync these extensions")
	f.StringArrayVar(&p.Ignore, "ignore", nil, "Ignore pattern in gitignore syntax (repeatable)")
	f.IntVar(&p.SyncDays, "sync-days", 0, "Only sync files modified within this many days (0 = all)")
	f.StringVar(&p.Policy, "policy", "", "Policy name")
	f.StringToStringVar(&policyConfig, "policy-config", nil, "Policy setting as key=value (repeatable)")
	f.StringVar(&p.Serial, "serial", "", "Only run against this device serial")
	f.BoolVar(&p.AutoSync, "auto-sync", false, "Run automatically when the device connects")
	f.BoolVar(&disabled, "disabled", false, "Add the pipeline disabled")

	for _, name := range []string{"name", "local", "remote"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newPipelinesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Remove a pipeline",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editPipelines(cmd, func(ps *config.Pipelines) error {
				return ps.Delete(args[0])
			}, "removed pipeline %s\n", args[0])
		},
	}
}

func newPipelinesToggleCmd(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editPipelines(cmd, func(ps *config.Pipelines) error {
				p, err := ps.Find(args[0])
				if err != nil {
					return err
				}

				p.Enabled = &enabled

				return ps.Update(args[0], p)
			}, verb+"d pipeline %s\n", args[0])
		},
	}
}

// editPipelines loads the pipelines file, applies fn, and saves.
func editPipelines(cmd *cobra.Command, fn func(*config.Pipelines) error, format string, args ...any) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	ps, err := a.loadPipelines()
	if err != nil {
		return err
	}

	if err := fn(ps); err != nil {
		return err
	}

	if err := ps.Save(a.cfg.PipelinesFile); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), format, args...)

	return nil
}
