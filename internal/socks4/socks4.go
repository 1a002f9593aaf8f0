// Package socks4 implements the client side of a SOCKS4 CONNECT handshake,
// including the hidden-service and resolve extensions used by Tor, plus the
// server-side parsing needed to stand in for a proxy in tests.
package socks4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"

	"github.com/die-net/dsocks/internal/proxyerr"
)

const (
	Version      byte = 4
	ReplyVersion byte = 0

	CmdConnect byte = 1
	// CmdResolve is Tor's extension asking the proxy to resolve a hostname.
	CmdResolve byte = 0xF0

	ReplyGranted       byte = 90
	ReplyRejected      byte = 91
	ReplyNoIdentd      byte = 92
	ReplyIdentMismatch byte = 93

	// HeaderLen is the length of the fixed request header and of a reply.
	HeaderLen = 8

	MaxHostnameLen = 255
	MaxUserIDLen   = 255
)

// HiddenServiceAddr is the sentinel destination of a connect whose real
// target is a hostname carried after the user id.
var HiddenServiceAddr = netip.AddrFrom4([4]byte{0, 0, 0, 2})

// Request is a SOCKS4 request.
type Request struct {
	Command  byte
	Dst      netip.AddrPort
	UserID   string
	Hostname string
}

// carriesHostname reports whether the encoding includes Hostname.
func (r *Request) carriesHostname() bool {
	return r.Command == CmdResolve || r.Dst.Addr() == HiddenServiceAddr
}

// AppendBinary appends the wire encoding of r to b.
func (r *Request) AppendBinary(b []byte) ([]byte, error) {
	if !r.Dst.Addr().Is4() {
		return nil, fmt.Errorf("socks4: destination %s is not IPv4", r.Dst.Addr())
	}
	if len(r.UserID) > MaxUserIDLen {
		return nil, fmt.Errorf("socks4: user id longer than %d bytes", MaxUserIDLen)
	}
	if len(r.Hostname) > MaxHostnameLen {
		return nil, fmt.Errorf("socks4: hostname longer than %d bytes", MaxHostnameLen)
	}

	ip := r.Dst.Addr().As4()
	b = append(b, Version, r.Command)
	b = binary.BigEndian.AppendUint16(b, r.Dst.Port())
	b = append(b, ip[:]...)
	b = append(b, r.UserID...)
	b = append(b, 0)
	if r.carriesHostname() {
		b = append(b, r.Hostname...)
		b = append(b, 0)
	}
	return b, nil
}

// Reply is a SOCKS4 reply. Dst is only meaningful for resolve replies.
type Reply struct {
	Version byte
	Code    byte
	Dst     netip.AddrPort
}

// ReadReply reads one 8-byte reply from r.
func ReadReply(r io.Reader) (Reply, error) {
	var b [HeaderLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Reply{}, err
	}
	return Reply{
		Version: b[0],
		Code:    b[1],
		Dst:     netip.AddrPortFrom(netip.AddrFrom4([4]byte(b[4:8])), binary.BigEndian.Uint16(b[2:4])),
	}, nil
}

// ReplyError is a non-granted reply code.
type ReplyError byte

func (e ReplyError) Error() string {
	switch byte(e) {
	case ReplyRejected:
		return "request rejected or failed (91)"
	case ReplyNoIdentd:
		return "request rejected: cannot reach identd (92)"
	case ReplyIdentMismatch:
		return "request rejected: user id mismatch (93)"
	default:
		return fmt.Sprintf("unknown reply code %d", byte(e))
	}
}

var errReplyVersion = errors.New("invalid reply version")

// Negotiate sends a CONNECT request for dst over rw and waits for the reply.
// A connect to HiddenServiceAddr carries hostname after the user id.
//
// One round trip, no retries: SendRequest, AwaitReply, then Connected or
// Failed. Transport failures are proxyerr.Timeout when a deadline expired and
// proxyerr.ProtocolViolation otherwise, as are bad versions and refusals.
func Negotiate(rw io.ReadWriter, dst netip.AddrPort, userID, hostname string) error {
	req := Request{Command: CmdConnect, Dst: dst, UserID: userID, Hostname: hostname}
	b, err := req.AppendBinary(make([]byte, 0, HeaderLen+len(userID)+len(hostname)+2))
	if err != nil {
		return proxyerr.New(proxyerr.ProtocolViolation, "socks4 request", err)
	}

	if _, err := rw.Write(b); err != nil {
		return proxyerr.FromIO("socks4 request", err)
	}

	rep, err := ReadReply(rw)
	if err != nil {
		return proxyerr.FromIO("socks4 reply", err)
	}
	if rep.Version != ReplyVersion {
		return proxyerr.New(proxyerr.ProtocolViolation, "socks4 reply", fmt.Errorf("%w %d", errReplyVersion, rep.Version))
	}
	if rep.Code != ReplyGranted {
		return proxyerr.New(proxyerr.ProtocolViolation, "socks4 reply", ReplyError(rep.Code))
	}
	return nil
}
