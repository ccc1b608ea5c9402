package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Fetch defaults.
const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBytes     = 5 << 20
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "vpnprobe"
)

var (
	// ErrUnsupportedScheme is returned for URLs other than http and https.
	ErrUnsupportedScheme = errors.New("only http and https URLs are supported")
	// ErrTooManyRedirects is returned when the redirect chain exceeds the limit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrTooLarge is returned when the body exceeds the size limit.
	ErrTooLarge = errors.New("subscription body is too large")
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected HTTP status")
	// ErrTimeout is returned when the fetch timed out.
	ErrTimeout = errors.New("fetch timed out")
)

// FetchError reports a failed subscription download.
type FetchError struct {
	// URL is the requested location.
	URL string

	// StatusCode is the HTTP status, if a response was received.
	StatusCode int

	// Err is the cause; one of the sentinel errors above, possibly joined
	// with the transport error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %v (HTTP %d)", e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the cause.
func (e *FetchError) Unwrap() error { return e.Err }

// Options tunes Fetch. Zero values select the defaults.
type Options struct {
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
	UserAgent    string

	// Transport overrides the HTTP transport, for example to fetch through
	// the active proxy.
	Transport http.RoundTripper
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	return o
}

// Fetch downloads the raw subscription body at rawURL.
func Fetch(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	if err := checkScheme(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: opts.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > opts.MaxRedirects {
				return ErrTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return ErrUnsupportedScheme
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: classify(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrStatus}
	}

	// One byte more than the limit detects overflow.
	body, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: classify(err)}
	}
	if int64(len(body)) > opts.MaxBytes {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrTooLarge}
	}
	return body, nil
}

func checkScheme(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Join(ErrUnsupportedScheme, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrUnsupportedScheme
	}
	return nil
}

// classify maps transport errors to the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		return ErrTooManyRedirects
	case errors.Is(err, ErrUnsupportedScheme):
		return ErrUnsupportedScheme
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
