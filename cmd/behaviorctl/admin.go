package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danmuck/globalbehavior/internal/server"
	"github.com/spf13/cobra"
)

func (f *adminFlags) client() *server.Client {
	token := f.token
	if token == "" {
		token = os.Getenv(envAdminToken)
	}
	return server.NewClient(f.addr, token)
}

func newTriggerCmd(admin *adminFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger NAME",
		Short: "Trigger a global behavior on a node",
		Long: `Trigger NAME on the target node as if one of its documents fired it.
NAME may carry @document selectors, e.g. pulse@stage@hud.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := admin.client().Trigger(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "triggered %s\n", args[0])
			return nil
		},
	}
}

func newAllowCmd(admin *adminFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "allow ORIGIN",
		Short: "Add an origin to a node's allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := admin.client().Allow(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allowed %s\n", args[0])
			return nil
		},
	}
}

func newTickerCmd(admin *adminFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticker",
		Short: "Manage behavior tickers on a node",
	}

	var req server.TickerRequest
	var pattern []bool
	start := &cobra.Command{
		Use:   "start NAME",
		Short: "Start a repeating trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("pattern") {
				req.Pattern = append([]bool{}, pattern...)
			}
			if err := admin.client().StartTicker(cmd.Context(), args[0], req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started ticker %s\n", args[0])
			return nil
		},
	}
	start.Flags().Float64Var(&req.Seconds, "seconds", 0, "interval in seconds")
	start.Flags().Float64Var(&req.FPS, "fps", 0, "interval as ticks per second")
	start.Flags().BoolSliceVar(&pattern, "pattern", nil, "cyclic fire pattern, e.g. true,false,true")
	start.Flags().BoolVar(&req.OmitFirst, "omit-first", false, "skip the immediate first tick")
	start.Flags().IntVar(&req.Countdown, "countdown", 0, "stop after this many fired ticks")
	start.MarkFlagsMutuallyExclusive("seconds", "fps")
	start.MarkFlagsOneRequired("seconds", "fps")

	stop := &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop one ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := admin.client().StopTicker(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped ticker %s\n", args[0])
			return nil
		},
	}

	stopAll := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every ticker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := admin.client().StopAllTickers(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stopped all tickers")
			return nil
		},
	}

	cmd.AddCommand(start, stop, stopAll)
	return cmd
}

func newStatusCmd(admin *adminFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a node's context snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := admin.client().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}
