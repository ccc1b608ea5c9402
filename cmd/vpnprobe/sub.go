package main

import (
	"errors"
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/subscription"
)

// errInvalidURL is returned for subscription URLs that are not absolute http(s).
var errInvalidURL = errors.New("subscription URL must be an absolute http or https URL")

// NewSubCmd creates the sub command group.
func NewSubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Manage saved subscriptions",
		Long: `Sub manages the subscription URLs that 'vpnprobe test' fetches.

Examples:
  vpnprobe sub add work https://example.com/subscription
  vpnprobe sub list
  vpnprobe sub update
  vpnprobe sub remove work`,
	}
	cmd.AddCommand(newSubAddCmd(), newSubListCmd(), newSubRemoveCmd(), newSubUpdateCmd())
	return cmd
}

func newSubAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME URL",
		Short: "Save a subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[1])
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("%w: %q", errInvalidURL, args[1])
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.AddSubscription(cmd.Context(), model.SubscriptionEntry{Name: args[0], URL: args[1]}); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added subscription %s\n", args[0])
			return nil
		},
	}
}

func newSubListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved subscriptions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			subs, err := store.ListSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Fprintln(a.out, "No subscriptions (add one with 'vpnprobe sub add NAME URL')")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tURL\tLAST UPDATE")
			for _, s := range subs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.URL, lastUpdate(s))
			}
			return tw.Flush()
		},
	}
}

func newSubRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a saved subscription",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.RemoveSubscription(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed subscription %s\n", args[0])
			return nil
		},
	}
}

func newSubUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [NAME]",
		Short: "Fetch subscriptions and report how many links they hold",
		Long: `Update downloads every saved subscription, or only NAME, decodes it and
stamps the last update time of the ones that answered.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
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

			subs, err := store.ListSubscriptions(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				entry, err := store.GetSubscription(ctx, args[0])
				if err != nil {
					return err
				}
				subs = []model.SubscriptionEntry{*entry}
			}
			if len(subs) == 0 {
				fmt.Fprintln(a.out, "No subscriptions to update")
				return nil
			}

			outcomes := subscription.FetchAll(ctx, subs, a.cfg.FetchOptions(), subscription.DefaultFetchConcurrency, a.logger)
			for _, out := range outcomes {
				if !out.OK() {
					fmt.Fprintf(a.out, "%s: failed: %v\n", out.Entry.Name, out.Err)
					continue
				}
				if err := store.TouchSubscription(ctx, out.Entry.Name, out.FetchedAt); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: %s links\n", out.Entry.Name, humanize.Comma(int64(len(out.Links))))
			}

			failed := lo.CountBy(outcomes, func(o subscription.Outcome) bool { return !o.OK() })
			if failed == len(outcomes) {
				return fmt.Errorf("all %d subscriptions failed to update", failed)
			}
			return nil
		},
	}
}

func lastUpdate(s model.SubscriptionEntry) string {
	if s.LastUpdate.IsZero() {
		return "never"
	}
	return humanize.Time(s.LastUpdate)
}
