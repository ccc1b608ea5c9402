package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/vpnprobe/internal/model"
)

// Diff is the change in alive servers between two runs.
type Diff struct {
	// NewlyAlive are alive now but were not alive before.
	NewlyAlive []model.TestResult `json:"newly_alive"`

	// Lost were alive before but are not alive now.
	Lost []model.TestResult `json:"lost"`

	// StillAlive counts servers alive in both runs.
	StillAlive int `json:"still_alive"`
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.NewlyAlive) == 0 && len(d.Lost) == 0
}

// resultKey identifies a server across runs.
func resultKey(r model.TestResult) string {
	if r.Profile.Fingerprint != "" {
		return r.Profile.Fingerprint
	}
	return r.Profile.ID() + "|" + r.Profile.UserID
}

// Compare computes the alive set difference from prev to cur.
// A nil prev treats every alive server in cur as new.
func Compare(prev, cur *model.TestReport) Diff {
	before := make(map[string]bool)
	if prev != nil {
		for _, r := range prev.Alive {
			before[resultKey(r)] = true
		}
	}
	now := make(map[string]bool, len(cur.Alive))

	var d Diff
	for _, r := range cur.Alive {
		k := resultKey(r)
		now[k] = true
		if before[k] {
			d.StillAlive++
			continue
		}
		d.NewlyAlive = append(d.NewlyAlive, r)
	}
	if prev != nil {
		for _, r := range prev.Alive {
			if !now[resultKey(r)] {
				d.Lost = append(d.Lost, r)
			}
		}
	}
	return d
}

// WriteDiff prints a Diff as plain text.
func WriteDiff(w io.Writer, d Diff) (int, error) {
	var sb strings.Builder
	section(&sb, "CHANGES SINCE PREVIOUS RUN")
	if d.Empty() {
		fmt.Fprintf(&sb, "  No changes (%d still alive)\n", d.StillAlive)
		return io.WriteString(w, sb.String())
	}
	for _, r := range d.NewlyAlive {
		fmt.Fprintf(&sb, "  + %s (%s) %s\n", displayName(r.Profile), r.Profile.ID(), formatLatency(r))
	}
	for _, r := range d.Lost {
		fmt.Fprintf(&sb, "  - %s (%s)\n", displayName(r.Profile), r.Profile.ID())
	}
	fmt.Fprintf(&sb, "  %d new, %d lost, %d still alive\n", len(d.NewlyAlive), len(d.Lost), d.StillAlive)
	return io.WriteString(w, sb.String())
}
