package link

import (
	"encoding/base64"
	"strings"
	"unicode"
)

// DecodeBase64 decodes s using the standard or URL-safe alphabet.
//
// Whitespace is removed first, and missing padding is added: link and
// subscription payloads are frequently published without it, so the padding
// length is (4 - len%4) % 4, which leaves already aligned input untouched.
func DecodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	clean = strings.TrimRight(clean, "=")
	clean += strings.Repeat("=", (4-len(clean)%4)%4)

	if b, err := base64.StdEncoding.DecodeString(clean); err == nil {
		return b, nil
	}
	b, err := base64.URLEncoding.DecodeString(clean)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeBase64 encodes data with the padded standard alphabet.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
