package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// SOCKS5 protocol constants.
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// handshakeTimeout bounds the greeting exchange.
const handshakeTimeout = 2 * time.Second

// Handshake verifies that a SOCKS5 listener without authentication answers
// at socksAddr. It does not send traffic upstream, so it is cheap enough to
// run on every status query of the active connection.
func Handshake(ctx context.Context, socksAddr string) Status {
	if !isValidProxyAddress(socksAddr) {
		return StatusProxyError
	}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", socksAddr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return StatusRefused
		}
		if ctx.Err() != nil {
			return StatusTimeout
		}
		return StatusProxyError
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return StatusProxyError
	}

	// Greeting: version, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return StatusProxyError
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return StatusTimeout
		}
		return StatusProxyError
	}
	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return StatusProxyError
	}
	return StatusOK
}
