package dnsresolver

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Transport sends an already-encoded request to a server and returns the
// raw response bytes, enforcing timeout as a deadline on this single call
// (§4.5). It is an external collaborator (§1) named per handle type: the
// engine holds one for UDP and one for TCP.
type Transport interface {
	Exchange(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error)
}

// maxDNSMessageSize is large enough to hold any legal DNS message
// (including EDNS up to 4096 and max TCP framing of 65535).
const maxDNSMessageSize = 65535

// udpTransport is the default UDP Transport, one request per datagram
// (§6.2).
type udpTransport struct{}

// Exchange implements Transport.
func (udpTransport) Exchange(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.Dial("udp", server.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := deadlineFor(ctx, timeout); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, err
	}

	buf := make([]byte, maxDNSMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// tcpTransport is the default TCP Transport: a 2-byte network-order length
// prefix followed by the message, for both request and response (§6.2).
type tcpTransport struct{}

// Exchange implements Transport.
func (tcpTransport) Exchange(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
	if len(payload) > maxDNSMessageSize {
		return nil, fmt.Errorf("dnsresolver: message too large for TCP framing: %d bytes", len(payload))
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", server.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := deadlineFor(ctx, timeout); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(payload)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := binary.BigEndian.Uint16(prefix[:])

	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// deadlineFor combines ctx's deadline (if any) with timeout (if it isn't
// Infinite), returning the earlier of the two.
func deadlineFor(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	var ok bool

	if d, hasDeadline := ctx.Deadline(); hasDeadline {
		deadline = d
		ok = true
	}

	if timeout > 0 {
		td := time.Now().Add(timeout)
		if !ok || td.Before(deadline) {
			deadline = td
			ok = true
		}
	}

	return deadline, ok
}
