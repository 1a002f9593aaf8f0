package socks4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
)

var errStringTooLong = errors.New("string too long")

// ReadRequest reads one request from r. Following SOCKS4a, a destination in
// 0.0.0.0/24 other than 0.0.0.0 is followed by a hostname.
//
// Strings are read a byte at a time so nothing past the request is consumed.
func ReadRequest(r io.Reader) (*Request, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("request header: %w", err)
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("request version %d", hdr[0])
	}

	ip := [4]byte(hdr[4:8])
	req := &Request{
		Command: hdr[1],
		Dst:     netip.AddrPortFrom(netip.AddrFrom4(ip), binary.BigEndian.Uint16(hdr[2:4])),
	}

	var err error
	if req.UserID, err = readString(r, MaxUserIDLen); err != nil {
		return nil, fmt.Errorf("request user id: %w", err)
	}
	if ip[0] == 0 && ip[1] == 0 && ip[2] == 0 && ip[3] != 0 {
		if req.Hostname, err = readString(r, MaxHostnameLen); err != nil {
			return nil, fmt.Errorf("request hostname: %w", err)
		}
	}
	return req, nil
}

func readString(r io.Reader, limit int) (string, error) {
	var (
		b  []byte
		ch [1]byte
	)
	for {
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return "", err
		}
		if ch[0] == 0 {
			return string(b), nil
		}
		if len(b) == limit {
			return "", errStringTooLong
		}
		b = append(b, ch[0])
	}
}

// WriteReply writes an 8-byte reply with the given code. dst is echoed in the
// port and address fields, which Tor uses to return a resolved address.
func WriteReply(w io.Writer, code byte, dst netip.AddrPort) error {
	b := make([]byte, 0, HeaderLen)
	b = append(b, ReplyVersion, code)
	b = binary.BigEndian.AppendUint16(b, dst.Port())
	if dst.Addr().Is4() {
		ip := dst.Addr().As4()
		b = append(b, ip[:]...)
	} else {
		b = append(b, 0, 0, 0, 0)
	}
	_, err := w.Write(b)
	return err
}
