package socks5

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/dsocks/internal/proxyerr"
)

// Reply codes from RFC 1928 that txsocks5 does not name the way we use them.
const (
	RepGeneralFailure      byte = 0x01
	RepNotAllowed          byte = 0x02
	RepNetworkUnreachable  byte = 0x03
	RepTTLExpired          byte = 0x06
	RepAddressNotSupported byte = 0x08

	methodNoAcceptable byte = 0xff
)

// ReplyError is a non-success CONNECT reply code.
type ReplyError byte

func (e ReplyError) Error() string {
	switch byte(e) {
	case RepGeneralFailure:
		return "general SOCKS server failure (1)"
	case RepNotAllowed:
		return "connection not allowed by ruleset (2)"
	case RepNetworkUnreachable:
		return "network unreachable (3)"
	case txsocks5.RepHostUnreachable:
		return "host unreachable (4)"
	case txsocks5.RepConnectionRefused:
		return "connection refused (5)"
	case RepTTLExpired:
		return "TTL expired (6)"
	case txsocks5.RepCommandNotSupported:
		return "command not supported (7)"
	case RepAddressNotSupported:
		return "address type not supported (8)"
	default:
		return fmt.Sprintf("unknown reply code %d", byte(e))
	}
}

// Kind is the failure kind a reply code maps to. Codes without a closer
// match, including unknown ones, are Aborted.
func (e ReplyError) Kind() proxyerr.Kind {
	switch byte(e) {
	case RepNotAllowed:
		return proxyerr.NotAllowed
	case RepNetworkUnreachable:
		return proxyerr.NetworkUnreachable
	case txsocks5.RepHostUnreachable:
		return proxyerr.HostUnreachable
	case txsocks5.RepConnectionRefused:
		return proxyerr.ConnectionRefused
	case RepTTLExpired:
		return proxyerr.TTLExpired
	default:
		return proxyerr.Aborted
	}
}

func replyErr(code byte) error {
	if code == txsocks5.RepSuccess {
		return nil
	}
	e := ReplyError(code)
	return proxyerr.New(e.Kind(), "socks5 connect", e)
}

// ReplyCode picks the reply a server sends when dialing the requested
// destination failed with err. It inverts ReplyError.Kind where it can;
// failures to resolve the destination are host unreachable.
func ReplyCode(err error) byte {
	switch proxyerr.KindOf(err) {
	case proxyerr.NotAllowed:
		return RepNotAllowed
	case proxyerr.NetworkUnreachable:
		return RepNetworkUnreachable
	case proxyerr.HostUnreachable, proxyerr.AnswerIncomplete, proxyerr.MalformedMessage:
		return txsocks5.RepHostUnreachable
	case proxyerr.ConnectionRefused, proxyerr.ProxyUnreachable:
		return txsocks5.RepConnectionRefused
	case proxyerr.Timeout, proxyerr.TTLExpired:
		return RepTTLExpired
	case proxyerr.Unknown:
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return txsocks5.RepHostUnreachable
		}
		switch proxyerr.Errno(err) {
		case syscall.ECONNREFUSED:
			return txsocks5.RepConnectionRefused
		case syscall.ENETUNREACH:
			return RepNetworkUnreachable
		case syscall.EHOSTUNREACH:
			return txsocks5.RepHostUnreachable
		case syscall.ETIMEDOUT:
			return RepTTLExpired
		}
	}
	return RepGeneralFailure
}
