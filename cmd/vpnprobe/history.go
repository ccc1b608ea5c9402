package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/vpnprobe/internal/database"
	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/report"
)

// defaultHistoryLimit is the number of runs listed by --list.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past test runs and what changed",
		Long: `History shows the latest test run and which servers became alive or were
lost compared with the run before it.

Examples:
  # Summary of the latest run and changes since the previous one
  vpnprobe history

  # List past runs
  vpnprobe history --list

  # Show the full report of run 12
  vpnprobe history --id 12

  # Changes as JSON
  vpnprobe history --json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false, "List past runs")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Number of runs to list (0 for all)")
	cmd.Flags().Int64P("id", "i", 0, "Show the report of the run with this ID")
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")

	return cmd
}

// historyJSON is the --json output of the default view.
type historyJSON struct {
	Latest   database.TestRunRecord  `json:"latest"`
	Previous *database.TestRunRecord `json:"previous,omitempty"`
	Diff     report.Diff             `json:"diff"`
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()

	if id != 0 {
		rep, err := store.GetTestRun(ctx, id)
		if err != nil {
			return err
		}
		if rep == nil {
			return fmt.Errorf("no test run with ID %d (use --list to see available IDs)", id)
		}
		format := report.FormatText
		if asJSON {
			format = report.FormatJSON
		}
		_, err = report.NewWriter(a.out, format).Write(rep)
		return err
	}

	if list {
		records, err := store.ListTestRuns(ctx, limit)
		if err != nil {
			return err
		}
		if asJSON {
			_, err = report.NewJSONWriter(a.out, report.WithPrettyPrint()).WriteValue(records)
			return err
		}
		return writeRunList(a, records)
	}

	records, err := store.ListTestRuns(ctx, 2)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No test runs yet (run 'vpnprobe test')")
		return nil
	}

	latest, err := store.GetTestRun(ctx, records[0].ID)
	if err != nil {
		return err
	}
	var previous *model.TestReport
	out := historyJSON{Latest: records[0]}
	if len(records) > 1 {
		if previous, err = store.GetTestRun(ctx, records[1].ID); err != nil {
			return err
		}
		out.Previous = &records[1]
	}
	out.Diff = report.Compare(previous, latest)

	if asJSON {
		_, err = report.NewJSONWriter(a.out, report.WithPrettyPrint()).WriteValue(out)
		return err
	}

	fmt.Fprintf(a.out, "Latest run #%d %s: %d of %d alive\n",
		records[0].ID, humanize.Time(records[0].FinishedAt), records[0].Alive, records[0].Total)
	if best, ok := latest.Best(); ok {
		fmt.Fprintf(a.out, "Fastest: %s (%.1f ms)\n", serverLabel(best.Profile), *best.LatencyMS)
	}
	if previous == nil {
		fmt.Fprintln(a.out, "No earlier run to compare with")
		return nil
	}
	_, err = report.WriteDiff(a.out, out.Diff)
	return err
}

func writeRunList(a *app, records []database.TestRunRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No test runs yet (run 'vpnprobe test')")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFINISHED\tTESTED\tALIVE\tFAILED\tELAPSED\t")
	for _, r := range records {
		mark := ""
		if r.Canceled {
			mark = "canceled"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, humanize.Time(r.FinishedAt), r.Total, r.Alive, r.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second), mark)
	}
	return tw.Flush()
}
