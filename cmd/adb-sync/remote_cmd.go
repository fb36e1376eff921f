package main

import (
	"fmt"
	"path"
	"text/tabwriter"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/adb"
	"github.com/alexjbarnes/adb-sync/internal/engine"
	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRemoteCmd())
}

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Inspect and clean up files on the device",
	}

	cmd.AddCommand(newRemoteListCmd(), newRemoteStatCmd(), newRemoteRemoveCmd())

	return cmd
}

// deviceClient selects a device the same way a run does.
func deviceClient(cmd *cobra.Command) (*adb.Client, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}

	bridge := a.bridge()
	if bridge.Serial() == "" {
		serial, err := bridge.SelectFirst(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}

		if serial == "" {
			return nil, apperrors.ErrNoDevice
		}
	}

	return bridge.Current(), nil
}

func newRemoteListCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls <dir>",
		Short: "List a device directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := deviceClient(cmd)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			if recursive {
				files, err := client.ListRecursive(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				// Empty output is also what a find without -printf gives.
				if len(files) == 0 {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "no files, or the device cannot list recursively")
					return err
				}

				for _, f := range files {
					fmt.Fprintf(w, "%s\t%s\t%s\n", humanize.Bytes(uint64(f.Size)), formatMtime(f.ModTime), f.RelPath)
				}

				return w.Flush()
			}

			entries, err := client.ListShallow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, e := range entries {
				printEntry(w, e)
			}

			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "List files in all subdirectories")

	return cmd
}

func newRemoteStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show size and modification time of a device path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := deviceClient(cmd)
			if err != nil {
				return err
			}

			e, err := client.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printEntry(w, e)

			return w.Flush()
		},
	}
}

func newRemoteRemoveCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a device path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := path.Clean(args[0])
			if p == "/" || p == "." {
				return fmt.Errorf("refusing to delete %q", args[0])
			}

			client, err := deviceClient(cmd)
			if err != nil {
				return err
			}

			if err := client.Delete(cmd.Context(), p, recursive); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Delete directories and their contents")

	return cmd
}

func printEntry(w *tabwriter.Writer, e engine.RemoteEntry) {
	mtime := "-"
	if e.HasModTime {
		mtime = formatMtime(e.ModTime)
	}

	if e.IsDir {
		fmt.Fprintf(w, "dir\t%s\t%s/\n", mtime, e.Name)
		return
	}

	fmt.Fprintf(w, "%s\t%s\t%s\n", humanize.Bytes(uint64(e.Size)), mtime, e.Name)
}

func formatMtime(unix int64) string {
	return time.Unix(unix, 0).Format("2006-01-02 15:04")
}
