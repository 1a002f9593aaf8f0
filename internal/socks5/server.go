package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

var errNoAcceptableMethod = errors.New("client does not offer no-auth")

// ServerNegotiateNoAuth reads a method offer and selects no-auth, or answers
// "no acceptable methods" when the client does not offer it.
func ServerNegotiateNoAuth(rw io.ReadWriter) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(rw)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}
	if !slices.Contains(neg.Methods, txsocks5.MethodNone) {
		_, _ = txsocks5.NewNegotiationReply(methodNoAcceptable).WriteTo(rw)
		return errNoAcceptableMethod
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(rw); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ServerSelectMethod reads a method offer and answers with method regardless
// of what was offered.
func ServerSelectMethod(rw io.ReadWriter, method byte) error {
	if _, err := txsocks5.NewNegotiationRequestFrom(rw); err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}
	if _, err := txsocks5.NewNegotiationReply(method).WriteTo(rw); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ServerReadRequest reads one request.
func ServerReadRequest(r io.Reader) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(r)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}

// WriteReply writes a reply with code rep and the IPv4 bound address bound.
func WriteReply(w io.Writer, rep byte, bound netip.AddrPort) error {
	var ip [4]byte
	if bound.Addr().Is4() {
		ip = bound.Addr().As4()
	}
	port := binary.BigEndian.AppendUint16(nil, bound.Port())
	if _, err := txsocks5.NewReply(rep, txsocks5.ATYPIPv4, ip[:], port).WriteTo(w); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}
