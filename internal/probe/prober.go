package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/net/proxy"
)

// Defaults for the beacon request.
const (
	DefaultURL            = "http://www.gstatic.com/generate_204"
	DefaultExpectedStatus = http.StatusNoContent
	DefaultConnectTimeout = 3 * time.Second
	DefaultTimeout        = 8 * time.Second
)

// maxDrain bounds how much of the beacon body is read.
const maxDrain = 64 << 10

// Result is the outcome of one probe.
type Result struct {
	// Status classifies the outcome.
	Status Status

	// Latency is the wall-clock duration of the request. Zero unless Status is OK.
	Latency time.Duration

	// HTTPStatus is the beacon's status code, if one was received.
	HTTPStatus int

	// Message is a short diagnostic for the operator.
	Message string
}

// Alive reports whether the candidate passed.
func (r Result) Alive() bool {
	return r.Status == StatusOK
}

// Prober sends one HTTP request through a local SOCKS5 endpoint and
// classifies the outcome. It holds no per-request state and is safe for
// concurrent use.
type Prober struct {
	url            string
	expectedStatus int
	connectTimeout time.Duration
	timeout        time.Duration
	logger         *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithURL sets the beacon URL.
func WithURL(beacon string) Option {
	return func(p *Prober) {
		p.url = beacon
	}
}

// WithExpectedStatus sets the status code that counts as alive.
func WithExpectedStatus(code int) Option {
	return func(p *Prober) {
		p.expectedStatus = code
	}
}

// WithConnectTimeout bounds the TCP connect to the local endpoint.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Prober) {
		p.connectTimeout = d
	}
}

// WithTimeout bounds the whole request.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		p.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// NewProber creates a Prober with the default beacon and timeouts.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		url:            DefaultURL,
		expectedStatus: DefaultExpectedStatus,
		connectTimeout: DefaultConnectTimeout,
		timeout:        DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URL returns the beacon URL.
func (p *Prober) URL() string {
	return p.url
}

// Check requests the beacon through the SOCKS5 endpoint at socksAddr.
// It never returns an error: every failure is a Result with a non-OK Status.
func (p *Prober) Check(ctx context.Context, socksAddr string) Result {
	if !isValidProxyAddress(socksAddr) {
		return Result{Status: StatusProxyError, Message: ErrInvalidAddress.Error()}
	}

	forward := &net.Dialer{Timeout: p.connectTimeout}
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, forward)
	if err != nil {
		return Result{Status: StatusProxyError, Message: fmt.Sprintf("create SOCKS5 dialer: %v", err)}
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return Result{Status: StatusProxyError, Message: "SOCKS5 dialer does not support contexts"}
	}

	transport := &http.Transport{
		DialContext:        contextDialer.DialContext,
		DisableKeepAlives:  true,
		DisableCompression: true,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Result{Status: StatusProxyError, Message: fmt.Sprintf("build request: %v", err)}
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		status := classify(err)
		p.logger.Debug("probe failed", "socks", socksAddr, "status", status.String(), "error", err)
		return Result{Status: status, Message: message(status, err)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain)) //nolint:errcheck // draining only
	_ = resp.Body.Close()
	elapsed := time.Since(started)

	if resp.StatusCode != p.expectedStatus {
		return Result{
			Status:     StatusBadStatus,
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("expected HTTP %d, got %d", p.expectedStatus, resp.StatusCode),
		}
	}
	return Result{
		Status:     StatusOK,
		Latency:    elapsed,
		HTTPStatus: resp.StatusCode,
		Message:    "HTTP " + strconv.Itoa(resp.StatusCode),
	}
}

// classify maps a request error to a Status.
func classify(err error) Status {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusRefused
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	return StatusProxyError
}

// message produces a one-line diagnostic without the full URL chain.
func message(status Status, err error) string {
	switch status {
	case StatusTimeout:
		return "timeout"
	case StatusRefused:
		return "connection refused"
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return urlErr.Err.Error()
		}
		return err.Error()
	}
}

// isValidProxyAddress checks for a "host:port" address with a usable port.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
