package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nao1215/vpnprobe/internal/checker"
	"github.com/nao1215/vpnprobe/internal/database"
	"github.com/nao1215/vpnprobe/internal/link"
	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/report"
	"github.com/nao1215/vpnprobe/internal/subscription"
)

// errNoCandidates is returned when no source yielded a usable link.
var errNoCandidates = errors.New("no servers to test (add a subscription with 'vpnprobe sub add' or pass --url/--file)")

// errCanceled is returned after an interrupted run has been reported.
var errCanceled = errors.New("test run canceled")

// NewTestCmd creates the test command.
func NewTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [link...]",
		Short: "Test servers and rank the reachable ones by latency",
		Long: `Test collects VMess links, starts one xray process per server and probes
a beacon URL through each of them.

Links come from every saved subscription, from --url subscription URLs,
from --file files (base64 subscription bodies or plain link lists, "-" for
stdin) and from arguments. Identical servers are tested once.

Examples:
  # Test every saved subscription
  vpnprobe test

  # Test a subscription URL without saving it, 8 servers at a time
  vpnprobe test --no-subscriptions --url https://example.com/sub -c 8

  # Test a local file and keep the working servers as a new subscription body
  vpnprobe test --file servers.txt --export alive.txt

  # Write a Markdown report
  vpnprobe test --markdown -o report.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runTestCmd,
	}

	cmd.Flags().StringArrayP("url", "u", nil, "Subscription URL to fetch (repeatable)")
	cmd.Flags().StringArrayP("file", "f", nil, `File with links or a subscription body, "-" for stdin (repeatable)`)
	cmd.Flags().Bool("no-subscriptions", false, "Do not fetch saved subscriptions")
	cmd.Flags().IntP("concurrency", "c", 0, "Number of servers tested at once (default from settings)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write report to the given file")
	cmd.Flags().String("export", "", "Write alive servers as a base64 subscription body to the given file")
	cmd.Flags().BoolP("quiet", "q", false, "Do not print progress")

	return cmd
}

// sources lists where test links come from.
type sources struct {
	urls            []string
	files           []string
	links           []string
	noSubscriptions bool
}

func runTestCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := applyTestFlags(cmd, a); err != nil {
		return err
	}
	if err := a.validate(); err != nil {
		return err
	}

	src := sources{links: args}
	if src.urls, err = cmd.Flags().GetStringArray("url"); err != nil {
		return err
	}
	if src.files, err = cmd.Flags().GetStringArray("file"); err != nil {
		return err
	}
	if src.noSubscriptions, err = cmd.Flags().GetBool("no-subscriptions"); err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
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

	progress := a.errOut
	if quiet {
		progress = io.Discard
	}
	rep, err := a.runTest(ctx, store, binary, src, cmd.InOrStdin(), progress)
	if err != nil {
		return err
	}
	return a.finishTest(ctx, store, rep)
}

// applyTestFlags copies the report flags into the settings.
func applyTestFlags(cmd *cobra.Command, a *app) error {
	var err error
	if n, _ := cmd.Flags().GetInt("concurrency"); n != 0 {
		a.cfg.Concurrency = n
	}
	if a.cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if a.cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if a.cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	if a.cfg.ExportFile, err = cmd.Flags().GetString("export"); err != nil {
		return err
	}
	return nil
}

// runTest gathers candidates and tests them.
func (a *app) runTest(ctx context.Context, store *database.Store, binary string, src sources, stdin io.Reader, progress io.Writer) (*model.TestReport, error) {
	lines, err := a.collectLinks(ctx, store, src, stdin, progress)
	if err != nil {
		return nil, err
	}
	candidates, skipped := link.NewParser().ParseAll(lines)
	candidates = checker.Dedup(candidates)
	if len(candidates) == 0 {
		for _, s := range skipped {
			a.logger.Debug("skipped link", "link", s.Raw, "reason", s.Reason)
		}
		return nil, errNoCandidates
	}

	o, err := a.newOrchestrator(binary, progressHandler(progress))
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(progress, "Testing %d servers (concurrency %d)...\n", len(candidates), o.Concurrency())

	rep := o.Run(ctx, candidates)
	rep.Skipped = skipped
	return rep, nil
}

// finishTest prints, exports and stores a report.
func (a *app) finishTest(ctx context.Context, store *database.Store, rep *model.TestReport) error {
	format := report.FormatText
	switch {
	case a.cfg.JSONReport:
		format = report.FormatJSON
	case a.cfg.MarkdownReport:
		format = report.FormatMarkdown
	}
	if err := a.writeOutput(a.cfg.ReportFile, func(w io.Writer) error {
		_, err := report.NewWriter(w, format).Write(rep)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if a.cfg.ExportFile != "" {
		err := a.writeOutput(a.cfg.ExportFile, func(w io.Writer) error {
			_, err := report.ExportLinks(w, rep)
			return err
		})
		switch {
		case errors.Is(err, report.ErrNothingToExport):
			fmt.Fprintln(a.errOut, "Nothing exported: no alive servers")
		case err != nil:
			return fmt.Errorf("failed to export links: %w", err)
		default:
			fmt.Fprintf(a.errOut, "Exported %d servers to %s\n", len(report.AliveLinks(rep)), a.cfg.ExportFile)
		}
	}

	// Saving must survive an interrupt that already canceled ctx.
	id, err := store.SaveTestRun(context.WithoutCancel(ctx), rep)
	if err != nil {
		a.logger.Error("failed to save test run", "error", err)
	} else {
		a.logger.Debug("test run saved", "id", id, "run", rep.RunID)
	}

	if rep.Canceled {
		return errCanceled
	}
	return nil
}

// collectLinks reads every source and returns unique raw lines.
func (a *app) collectLinks(ctx context.Context, store *database.Store, src sources, stdin io.Reader, progress io.Writer) ([]string, error) {
	var stored []model.SubscriptionEntry
	if !src.noSubscriptions {
		if err := a.seedSubscriptions(ctx, store); err != nil {
			return nil, err
		}
		var err error
		if stored, err = store.ListSubscriptions(ctx); err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
	}

	entries := append([]model.SubscriptionEntry(nil), stored...)
	entries = append(entries, lo.Map(src.urls, func(u string, _ int) model.SubscriptionEntry {
		return model.SubscriptionEntry{Name: u, URL: u}
	})...)

	var lines []string
	for i, out := range subscription.FetchAll(ctx, entries, a.cfg.FetchOptions(), subscription.DefaultFetchConcurrency, a.logger) {
		if !out.OK() {
			fmt.Fprintf(progress, "Warning: subscription %s: %v\n", out.Entry.Name, out.Err)
			continue
		}
		fmt.Fprintf(progress, "Fetched %d links from %s\n", len(out.Links), out.Entry.Name)
		lines = append(lines, out.Links...)
		if i < len(stored) {
			if err := store.TouchSubscription(ctx, out.Entry.Name, out.FetchedAt); err != nil {
				a.logger.Warn("failed to stamp subscription", "name", out.Entry.Name, "error", err)
			}
		}
	}

	for _, path := range src.files {
		links, size, err := readLinkFile(path, stdin)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(progress, "Read %d links from %s (%s)\n", len(links), displayPath(path), humanize.Bytes(uint64(size)))
		lines = append(lines, links...)
	}

	for _, arg := range src.links {
		lines = append(lines, subscription.SplitLines(arg)...)
	}
	return subscription.Unique(lines), nil
}

// seedSubscriptions adds the subscriptions listed in the settings file.
func (a *app) seedSubscriptions(ctx context.Context, store *database.Store) error {
	for _, seed := range a.cfg.Subscriptions {
		err := store.AddSubscription(ctx, model.SubscriptionEntry{Name: seed.Name, URL: seed.URL})
		switch {
		case err == nil:
			a.logger.Info("subscription added from settings", "name", seed.Name)
		case errors.Is(err, database.ErrSubscriptionExists):
		default:
			return fmt.Errorf("failed to add subscription %q from settings: %w", seed.Name, err)
		}
	}
	return nil
}

// readLinkFile decodes a link file, or stdin for "-".
func readLinkFile(path string, stdin io.Reader) ([]string, int, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // user-provided input path
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", displayPath(path), err)
	}
	return subscription.DecodeLinks(data), len(data), nil
}

func displayPath(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}

// progressHandler prints one line per finished candidate.
func progressHandler(w io.Writer) checker.EventHandler {
	return func(ev checker.Event) {
		if ev.Type != checker.EventTaskFinished || ev.Result == nil {
			return
		}
		r := ev.Result
		name := r.Profile.DisplayName
		if name == "" {
			name = r.Profile.ID()
		}
		if r.Alive {
			fmt.Fprintf(w, "[%d/%d] alive %8.1f ms  %s\n", ev.Done, ev.Total, *r.LatencyMS, name)
			return
		}
		fmt.Fprintf(w, "[%d/%d] dead  %-8s  %s: %s\n", ev.Done, ev.Total, r.Kind, name, r.Message)
	}
}
