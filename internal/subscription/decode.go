package subscription

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/nao1215/vpnprobe/internal/link"
)

// DecodeLinks extracts raw links from a subscription body.
//
// The body is normally base64 of a newline separated link list. A body that
// already contains "://" is taken as a plain list. Empty or undecodable
// content yields no links and no error.
func DecodeLinks(body []byte) []string {
	text := strings.TrimPrefix(string(bytes.TrimSpace(body)), "\ufeff")
	if text == "" {
		return nil
	}
	if !strings.Contains(text, "://") {
		decoded, err := link.DecodeBase64(text)
		if err != nil || !utf8.Valid(decoded) {
			return nil
		}
		text = string(decoded)
	}
	return SplitLines(text)
}

// SplitLines splits text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	lines := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	lines = lo.Map(lines, func(l string, _ int) string { return strings.TrimSpace(l) })
	return lo.Compact(lines)
}

// Unique drops repeated lines, keeping the first occurrence.
func Unique(lines []string) []string {
	return lo.Uniq(lines)
}

// EncodeLinks renders links as a base64 subscription body, the inverse of
// DecodeLinks.
func EncodeLinks(links []string) string {
	return link.EncodeBase64([]byte(strings.Join(links, "\n")))
}
