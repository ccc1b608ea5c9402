package subscription

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/vpnprobe/internal/model"
)

// DefaultFetchConcurrency is the number of subscriptions fetched at once.
const DefaultFetchConcurrency = 4

// Outcome is the result of refreshing one subscription.
type Outcome struct {
	// Entry is the subscription that was fetched.
	Entry model.SubscriptionEntry

	// Links are the decoded raw links, deduplicated.
	Links []string

	// FetchedAt is set when the fetch succeeded.
	FetchedAt time.Time

	// Err is the fetch error, if any.
	Err error
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// FetchAll fetches every entry concurrently. A failing entry never stops
// the others; outcomes keep the order of entries.
func FetchAll(ctx context.Context, entries []model.SubscriptionEntry, opts Options, concurrency int, logger *slog.Logger) []Outcome {
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	outcomes := make([]Outcome, len(entries))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, entry := range entries {
		g.Go(func() error {
			out := Outcome{Entry: entry}
			body, err := Fetch(ctx, entry.URL, opts)
			if err != nil {
				logger.Warn("subscription fetch failed", "name", entry.Name, "error", err)
				out.Err = err
				outcomes[i] = out
				return nil
			}
			out.Links = Unique(DecodeLinks(body))
			out.FetchedAt = time.Now()
			logger.Debug("subscription fetched", "name", entry.Name, "links", len(out.Links), "bytes", len(body))
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks never return errors
	return outcomes
}
