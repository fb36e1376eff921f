package main

import (
	"fmt"
	"os"

	"github.com/alexjbarnes/adb-sync/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newImportCmd())
}

func newImportCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <config.json>",
		Short: "Import pipelines from a legacy config.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			imported, err := config.ImportLegacyJSON(data)
			if err != nil {
				return err
			}

			return editPipelines(cmd, func(ps *config.Pipelines) error {
				for _, p := range imported {
					if _, err := ps.Find(p.Name); err == nil {
						if !replace {
							return fmt.Errorf("pipeline %q already exists; use --replace to overwrite", p.Name)
						}

						if err := ps.Update(p.Name, p); err != nil {
							return err
						}

						continue
					}

					if err := ps.Add(p); err != nil {
						return err
					}
				}

				return nil
			}, "imported %d pipelines\n", len(imported))
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite pipelines with the same name")

	return cmd
}
