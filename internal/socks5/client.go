package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/dsocks/internal/proxyerr"
)

// connectReplyLen is the size of a CONNECT reply with an IPv4 bound address:
// VER REP RSV ATYP, four address bytes and a port.
const connectReplyLen = 10

// ErrAuthRequired reports that the proxy refused the no-auth method.
var ErrAuthRequired = errors.New("proxy requires authentication")

// Negotiate runs the method negotiation and CONNECT for dst over rw.
func Negotiate(rw io.ReadWriter, dst netip.AddrPort) error {
	if err := ClientNegotiate(rw); err != nil {
		return err
	}
	return ClientConnect(rw, dst)
}

// ClientNegotiate offers only the no-auth method and fails unless the proxy
// selects it.
func ClientNegotiate(rw io.ReadWriter) error {
	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(rw); err != nil {
		return proxyerr.FromIO("socks5 auth", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(rw)
	switch {
	case errors.Is(err, txsocks5.ErrVersion):
		return proxyerr.New(proxyerr.ProtocolViolation, "socks5 auth", err)
	case err != nil:
		return proxyerr.FromIO("socks5 auth", err)
	case neg.Method != txsocks5.MethodNone:
		return proxyerr.New(proxyerr.ProtocolViolation, "socks5 auth", fmt.Errorf("%w (method %#x)", ErrAuthRequired, neg.Method))
	}
	return nil
}

// ClientConnect sends a CONNECT for the IPv4 destination dst and reads the
// fixed-size reply. Only the reply code is looked at.
func ClientConnect(rw io.ReadWriter, dst netip.AddrPort) error {
	if !dst.Addr().Is4() {
		return proxyerr.New(proxyerr.ProtocolViolation, "socks5 connect", fmt.Errorf("destination %s is not IPv4", dst.Addr()))
	}
	ip := dst.Addr().As4()
	port := binary.BigEndian.AppendUint16(nil, dst.Port())

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, txsocks5.ATYPIPv4, ip[:], port).WriteTo(rw); err != nil {
		return proxyerr.FromIO("socks5 connect", err)
	}

	var rep [connectReplyLen]byte
	if _, err := io.ReadFull(rw, rep[:]); err != nil {
		return proxyerr.FromIO("socks5 connect", err)
	}
	return replyErr(rep[1])
}
