package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/probe"
)

var (
	// errNoRuns is returned when connect needs a previous test run.
	errNoRuns = errors.New("no test run yet (run 'vpnprobe test' first or use --best)")

	// errNoAlive is returned when the chosen run has no alive server.
	errNoAlive = errors.New("the latest test run has no alive servers")

	// errProxyExited is returned when a foreground proxy dies on its own.
	errProxyExited = errors.New("proxy process exited")
)

// NewConnectCmd creates the connect command.
func NewConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect [rank|fingerprint]",
		Short: "Run a tested server as the local proxy",
		Long: `Connect starts xray for one server of the latest test run on the
production ports (SOCKS5 10808 and HTTP 10809 by default).

The server is chosen by its rank in the latest run (1 is the fastest, the
default) or by a fingerprint prefix as printed by 'vpnprobe test'. A running
connection, including one left by an earlier invocation, is replaced.

Without --detach the proxy runs in the foreground until interrupted.

Examples:
  # Connect to the fastest server of the latest run
  vpnprobe connect

  # Test everything again, connect to the fastest and return to the shell
  vpnprobe connect --best --detach

  # Connect to a server by fingerprint
  vpnprobe connect 3fa9c2`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConnectCmd,
	}

	cmd.Flags().BoolP("best", "b", false, "Run a fresh test of all saved subscriptions first")
	cmd.Flags().BoolP("detach", "d", false, "Leave the proxy running in the background and exit")

	return cmd
}

func runConnectCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := a.validate(); err != nil {
		return err
	}
	best, err := cmd.Flags().GetBool("best")
	if err != nil {
		return err
	}
	detach, err := cmd.Flags().GetBool("detach")
	if err != nil {
		return err
	}

	binary, err := a.binary()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var rep *model.TestReport
	if best {
		if rep, err = a.runTest(ctx, store, binary, sources{}, cmd.InOrStdin(), a.errOut); err != nil {
			return err
		}
		if err := a.finishTest(ctx, store, rep); err != nil {
			return err
		}
	} else if rep, err = store.LatestTestRun(ctx); err != nil {
		return fmt.Errorf("failed to load latest test run: %w", err)
	}

	selector := ""
	if len(args) > 0 {
		selector = args[0]
	}
	chosen, err := selectServer(rep, selector)
	if err != nil {
		return err
	}

	mgr, err := a.newManager(binary, store, detach)
	if err != nil {
		return err
	}
	conn, err := mgr.Connect(ctx, chosen.Profile)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverLabel(chosen.Profile), err)
	}

	fmt.Fprintf(a.out, "Connected to %s (%s)\n", serverLabel(conn.Profile), conn.Profile.ID())
	fmt.Fprintf(a.out, "  SOCKS5: %s\n", conn.SocksAddr())
	fmt.Fprintf(a.out, "  HTTP:   %s\n", conn.HTTPAddr())
	fmt.Fprintf(a.out, "  PID:    %d\n", conn.PID)
	if detach {
		fmt.Fprintln(a.out, "Run 'vpnprobe disconnect' to stop it.")
		return nil
	}

	fmt.Fprintln(a.out, "Press Ctrl+C to disconnect.")
	var exitErr error
	select {
	case <-ctx.Done():
	case <-mgr.Done():
		exitErr = errProxyExited
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.StopTimeout+a.cfg.KillTimeout+time.Second)
	defer cancel()
	if err := mgr.Disconnect(stopCtx); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	fmt.Fprintf(a.out, "Disconnected from %s\n", serverLabel(conn.Profile))
	return exitErr
}

// selectServer picks an alive result by 1-based rank or fingerprint prefix.
// An empty selector means rank 1.
func selectServer(rep *model.TestReport, selector string) (model.TestResult, error) {
	if rep == nil {
		return model.TestResult{}, errNoRuns
	}
	if len(rep.Alive) == 0 {
		return model.TestResult{}, errNoAlive
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		selector = "1"
	}

	if n, err := strconv.Atoi(selector); err == nil {
		if n < 1 || n > len(rep.Alive) {
			return model.TestResult{}, fmt.Errorf("rank %d is out of range 1-%d", n, len(rep.Alive))
		}
		return rep.Alive[n-1], nil
	}

	prefix := strings.ToLower(selector)
	matches := lo.Filter(rep.Alive, func(r model.TestResult, _ int) bool {
		return strings.HasPrefix(strings.ToLower(r.Profile.Fingerprint), prefix)
	})
	switch len(matches) {
	case 0:
		return model.TestResult{}, fmt.Errorf("no alive server matches fingerprint %q", selector)
	case 1:
		return matches[0], nil
	default:
		return model.TestResult{}, fmt.Errorf("fingerprint %q is ambiguous (%d servers)", selector, len(matches))
	}
}

func serverLabel(p model.ServerProfile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID()
}

// NewDisconnectCmd creates the disconnect command.
func NewDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Stop the local proxy",
		Long:  `Disconnect stops the proxy started by 'vpnprobe connect' and removes its config.`,
		Args:  cobra.NoArgs,
		RunE:  runDisconnectCmd,
	}
}

func runDisconnectCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mgr, err := a.newManager(a.cfg.XrayBinary, store, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	conn, err := mgr.Recover(ctx)
	if err != nil {
		return err
	}
	if conn == nil {
		fmt.Fprintln(a.out, "Not connected")
		return nil
	}
	if err := mgr.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	fmt.Fprintf(a.out, "Disconnected from %s (was up %s)\n",
		serverLabel(conn.Profile), conn.Uptime(time.Now()).Round(time.Second))
	return nil
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local proxy connection",
		Long: `Status shows which server the local proxy routes through and checks that
its SOCKS5 listener answers. A record whose process is gone is cleared.`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mgr, err := a.newManager(a.cfg.XrayBinary, store, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	conn, err := mgr.Recover(ctx)
	if err != nil {
		return err
	}
	if conn == nil {
		fmt.Fprintln(a.out, "Not connected")
		return nil
	}

	listener := probe.Handshake(ctx, conn.SocksAddr())
	fmt.Fprintf(a.out, "Connected to %s (%s)\n", serverLabel(conn.Profile), conn.Profile.ID())
	fmt.Fprintf(a.out, "  Since:  %s\n", humanize.Time(conn.StartedAt))
	fmt.Fprintf(a.out, "  SOCKS5: %s (%s)\n", conn.SocksAddr(), listener)
	fmt.Fprintf(a.out, "  HTTP:   %s\n", conn.HTTPAddr())
	fmt.Fprintf(a.out, "  PID:    %d\n", conn.PID)
	return nil
}
