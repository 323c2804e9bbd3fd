package main

import (
	"fmt"

	"github.com/danmuck/globalbehavior/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write and validate node configs",
	}

	var kind, out, from string
	var force bool
	template := &cobra.Command{
		Use:   "template",
		Short: "Write a config template",
		Long: `Write a root or frame config template. With --from, load an existing
config and write its normalized form instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from != "" {
				cfg, err := config.LoadNodeConfig(from)
				if err != nil {
					return err
				}
				if err := config.WriteSnapshot(out, cfg, force); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote normalized config from %s to %s\n", from, out)
				return nil
			}
			if err := config.WriteTemplate(out, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, out)
			return nil
		},
	}
	template.Flags().StringVar(&kind, "kind", "root", "template kind: root|frame")
	template.Flags().StringVarP(&out, "out", "o", defaultConfigPath, "output path")
	template.Flags().StringVar(&from, "from", "", "existing config to normalize")
	template.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNodeConfig(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s: documents=%d tickers=%d\n", path, len(cfg.Documents), len(cfg.Tickers))
			return nil
		},
	}
	validate.Flags().StringVarP(&path, "config", "c", defaultConfigPath, "config path")

	cmd.AddCommand(template, validate)
	return cmd
}
