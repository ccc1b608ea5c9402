package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for vpnprobe.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vpnprobe",
		Short: "Health checker and connection manager for VMess subscriptions",
		Long: `vpnprobe finds the VMess servers that actually work.

It collects links from saved subscriptions, URLs and files, starts one local
xray process per candidate on its own port pair, probes a beacon URL through
each one and ranks the servers that answered by latency. The fastest server
can then be kept running as the local SOCKS5 and HTTP proxy.

The xray binary must be installed and in PATH, or configured in .vpnprobe.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().String("config", "",
		"Settings file path (default: .vpnprobe in current or home directory)")

	cmd.AddCommand(NewTestCmd())
	cmd.AddCommand(NewConnectCmd())
	cmd.AddCommand(NewDisconnectCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSubCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
