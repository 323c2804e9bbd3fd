package main

import (
	"fmt"

	"github.com/danmuck/globalbehavior/internal/config"
	"github.com/danmuck/globalbehavior/internal/node"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a window context node",
		Long:  `Load a node config and run its window context until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNodeConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return node.NewService(cfg).Run()
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", defaultConfigPath, "node config path")
	return cmd
}
