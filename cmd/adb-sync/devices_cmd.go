package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDevicesCmd())
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			devices, err := a.bridge().Devices(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(devices) == 0 {
				_, err := fmt.Fprintln(out, "no devices attached")
				return err
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERIAL\tSTATE")

			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\n", d.Serial, d.State)
			}

			return w.Flush()
		},
	}
}
