package dnsmsg

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/miekg/dns"

	"github.com/die-net/dsocks/internal/proxyerr"
)

// EncodeQuery builds a recursive query for name with a random transaction id
// and returns the packed message and that id.
func EncodeQuery(name string, qtype uint16) ([]byte, uint16, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)

	b, err := m.Pack()
	if err != nil {
		return nil, 0, fmt.Errorf("dns: pack query for %q: %w", name, err)
	}
	return b, m.Id, nil
}

// Frame prefixes msg with its 2-byte big-endian length, as required on stream
// transports.
func Frame(msg []byte) ([]byte, error) {
	if len(msg) > 0xffff {
		return nil, fmt.Errorf("dns: message too long for framing: %d bytes", len(msg))
	}
	b := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(b, uint16(len(msg)))
	copy(b[2:], msg)
	return b, nil
}

// ReadFrame reads one length-prefixed message from r. A stream that ends
// before the declared length fails with proxyerr.AnswerIncomplete, or
// proxyerr.Timeout if r's deadline expired.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, frameErr(err)
	}
	msg := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, frameErr(err)
	}
	return msg, nil
}

func frameErr(err error) error {
	pe := proxyerr.FromIO("dns read", err)
	if pe.Kind == proxyerr.ProtocolViolation {
		return proxyerr.New(proxyerr.AnswerIncomplete, pe.Stage, pe.Err)
	}
	return pe
}

// ID returns the transaction id of msg.
func ID(msg []byte) (uint16, bool) {
	if len(msg) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(msg), true
}
