package report

import (
	"errors"
	"io"

	"github.com/samber/lo"

	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/subscription"
)

// ErrNothingToExport is returned when a report has no alive server with a raw link.
var ErrNothingToExport = errors.New("no alive servers to export")

// AliveLinks returns the raw links of the alive servers in rank order.
func AliveLinks(report *model.TestReport) []string {
	links := lo.FilterMap(report.Alive, func(r model.TestResult, _ int) (string, bool) {
		return r.Profile.Raw, r.Profile.Raw != ""
	})
	return lo.Uniq(links)
}

// ExportLinks writes the alive servers as a base64 subscription body that
// "vpnprobe test --file" or any subscription client can import again.
func ExportLinks(w io.Writer, report *model.TestReport) (int, error) {
	links := AliveLinks(report)
	if len(links) == 0 {
		return 0, ErrNothingToExport
	}
	return io.WriteString(w, subscription.EncodeLinks(links)+"\n")
}
