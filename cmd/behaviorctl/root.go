package main

import (
	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "cmd/behaviorctl/config.toml"
	defaultAdminAddr  = "127.0.0.1:9400"
	envAdminToken     = "BEHAVIOR_ADMIN_TOKEN"
)

type adminFlags struct {
	addr  string
	token string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "behaviorctl",
		Short: "Run and drive global behavior window contexts",
		Long: `behaviorctl runs a window context node from a TOML config and drives
running nodes through their admin API.`,
		SilenceUsage: true,
	}

	admin := &adminFlags{}
	root.PersistentFlags().StringVar(&admin.addr, "addr", defaultAdminAddr, "admin API address of the target node")
	root.PersistentFlags().StringVar(&admin.token, "token", "", "admin bearer token (default $"+envAdminToken+")")

	root.AddCommand(
		newRunCmd(),
		newTriggerCmd(admin),
		newAllowCmd(admin),
		newTickerCmd(admin),
		newStatusCmd(admin),
		newConfigCmd(),
	)
	return root
}
