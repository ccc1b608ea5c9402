package link

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/nao1215/vpnprobe/internal/model"
	"golang.org/x/crypto/sha3"
)

// Decoder turns one link of a specific scheme into a profile.
type Decoder func(raw string) (model.ServerProfile, error)

// unsupportedSchemes are proxy link schemes that are recognized but not decoded.
// Reporting them separately tells the operator why a subscription yielded
// fewer candidates than lines.
var unsupportedSchemes = []string{
	"vless", "trojan", "ss", "ssr", "hysteria", "hysteria2", "hy2", "socks", "tuic", "reality",
}

// Parser dispatches links to a decoder by scheme.
// The zero value is not usable; create one with NewParser.
type Parser struct {
	decoders map[string]Decoder
}

// NewParser returns a Parser with the vmess decoder registered.
func NewParser() *Parser {
	return &Parser{
		decoders: map[string]Decoder{
			SchemeVMess: ParseVMess,
		},
	}
}

// Parse decodes one line.
//
// It returns ok=false with a nil error when the line is not a link of any
// known scheme, so callers can try other formats. For a known scheme it
// returns ok=true and either a profile or a *DecodeError.
func (p *Parser) Parse(line string) (model.ServerProfile, bool, error) {
	line = strings.TrimSpace(line)
	scheme := Scheme(line)
	if scheme == "" {
		return model.ServerProfile{}, false, nil
	}
	if dec, found := p.decoders[scheme]; found {
		profile, err := dec(line)
		return profile, true, err
	}
	for _, s := range unsupportedSchemes {
		if s == scheme {
			return model.ServerProfile{}, true, newDecodeError(line, ErrUnsupportedScheme)
		}
	}
	return model.ServerProfile{}, false, nil
}

// ParseAll decodes every line, skipping the ones that fail.
// Skipped lines are returned with a short reason; blank lines and comments
// are ignored silently.
func (p *Parser) ParseAll(lines []string) ([]model.ServerProfile, []model.SkippedLink) {
	profiles := make([]model.ServerProfile, 0, len(lines))
	var skipped []model.SkippedLink
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		profile, ok, err := p.Parse(line)
		switch {
		case !ok:
			skipped = append(skipped, model.SkippedLink{Raw: Snippet(line), Reason: "not a proxy link"})
		case err != nil:
			skipped = append(skipped, model.SkippedLink{Raw: Snippet(line), Reason: reason(err)})
		default:
			profiles = append(profiles, profile)
		}
	}
	return profiles, skipped
}

// reason reduces a decode error to its cause, without the repeated link text.
func reason(err error) string {
	var de *DecodeError
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}

// Scheme returns the lower-cased scheme of a link, or "" if there is none.
func Scheme(line string) string {
	i := strings.Index(line, "://")
	if i <= 0 {
		return ""
	}
	scheme := strings.ToLower(line[:i])
	for _, r := range scheme {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return ""
		}
	}
	return scheme
}

// Fingerprint returns the hex SHA3-256 digest of a trimmed raw link.
// It is the identity used to deduplicate candidates.
func Fingerprint(raw string) string {
	sum := sha3.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
