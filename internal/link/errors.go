package link

import (
	"errors"
	"fmt"
)

// Decoding errors.
// Every failure is wrapped in a *DecodeError; these sentinels describe the cause.
var (
	// ErrUnsupportedScheme is returned for links of a known proxy scheme that
	// this tool cannot turn into a profile (vless://, trojan://, ...).
	ErrUnsupportedScheme = errors.New("unsupported link scheme")

	// ErrBase64 is returned when the link payload is not valid base64.
	ErrBase64 = errors.New("payload is not valid base64")

	// ErrPayload is returned when the decoded payload is not a JSON object
	// of the expected shape.
	ErrPayload = errors.New("payload is not a valid link record")

	// ErrEmptyPayload is returned when nothing follows the scheme prefix.
	ErrEmptyPayload = errors.New("link has no payload")
)

// maxSnippet bounds the raw text kept in a DecodeError.
const maxSnippet = 64

// DecodeError reports a link that could not be decoded.
// Callers skip the link and continue; it is never fatal.
type DecodeError struct {
	// Raw is the offending link, truncated.
	Raw string

	// Err is the underlying cause.
	Err error
}

// newDecodeError wraps err for the given link.
func newDecodeError(raw string, err error) *DecodeError {
	return &DecodeError{Raw: Snippet(raw), Err: err}
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("decode %q: %v", e.Raw, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Unsupported reports whether the link was skipped only because its scheme
// is not implemented.
func (e *DecodeError) Unsupported() bool {
	return errors.Is(e.Err, ErrUnsupportedScheme)
}

// Snippet truncates a raw link for logs and reports.
func Snippet(raw string) string {
	runes := []rune(raw)
	if len(runes) <= maxSnippet {
		return raw
	}
	return string(runes[:maxSnippet]) + "..."
}
