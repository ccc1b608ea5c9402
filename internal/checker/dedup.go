package checker

import (
	"github.com/samber/lo"

	"github.com/nao1215/vpnprobe/internal/link"
	"github.com/nao1215/vpnprobe/internal/model"
)

// Dedup drops candidates whose raw link was already seen, keeping the first
// occurrence. Profiles that differ in any way in their raw link, including
// only the display name, stay distinct.
func Dedup(candidates []model.ServerProfile) []model.ServerProfile {
	return lo.UniqBy(candidates, identity)
}

// identity is the dedup key: the raw-link fingerprint when known.
func identity(p model.ServerProfile) string {
	if p.Fingerprint != "" {
		return p.Fingerprint
	}
	if p.Raw != "" {
		return link.Fingerprint(p.Raw)
	}
	// Hand-built profiles without a link; every field that reaches the
	// generated config takes part.
	return p.ID() + "|" + p.UserID + "|" + string(p.Network) + "|" + p.Path + "|" + p.Host + "|" + p.DisplayName
}
