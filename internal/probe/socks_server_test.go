package probe

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
)

// socksMode selects how the fake SOCKS5 server behaves.
type socksMode int

const (
	// socksRelay completes CONNECT and relays bytes to the target.
	socksRelay socksMode = iota
	// socksReject answers CONNECT with "general failure".
	socksReject
	// socksGarbage answers the greeting with a non-SOCKS reply.
	socksGarbage
	// socksSilent accepts the connection and never answers.
	socksSilent
)

// fakeSOCKS5 is a minimal no-auth SOCKS5 server standing in for a proxy process.
type fakeSOCKS5 struct {
	ln   net.Listener
	mode socksMode

	mu    sync.Mutex
	conns []net.Conn
}

func startFakeSOCKS5(t *testing.T, mode socksMode) *fakeSOCKS5 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSOCKS5{ln: ln, mode: mode}
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *fakeSOCKS5) addr() string {
	return s.ln.Addr().String()
}

func (s *fakeSOCKS5) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *fakeSOCKS5) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeSOCKS5) handle(conn net.Conn) {
	if s.mode == socksSilent {
		// Held open until close.
		_, _ = io.Copy(io.Discard, conn)
		return
	}
	defer conn.Close()

	head := make([]byte, 2)
	if _, err := io.ReadFull(conn, head); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, head[1])); err != nil {
		return
	}
	if s.mode == socksGarbage {
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	// CONNECT request: ver, cmd, rsv, atyp, addr, port.
	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}
	var host string
	switch req[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x03:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	case 0x04:
		ip := make([]byte, 16)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	default:
		return
	}
	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return
	}
	target := net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(portBuf))))

	reply := []byte{0x05, 0x00, 0x00, 0x01, 127, 0, 0, 1, 0, 0}
	if s.mode == socksReject {
		reply[1] = 0x01
		_, _ = conn.Write(reply)
		return
	}

	upstream, err := net.Dial("tcp", target)
	if err != nil {
		reply[1] = 0x05
		_, _ = conn.Write(reply)
		return
	}
	defer upstream.Close()
	if _, err := conn.Write(reply); err != nil {
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, conn)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(conn, upstream)
		done <- struct{}{}
	}()
	<-done
}
