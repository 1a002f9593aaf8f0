package proxyerr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("dial: %w", New(HostUnreachable, "socks5 connect", nil))

	if !errors.Is(err, HostUnreachable) {
		t.Fatalf("errors.Is(%v, HostUnreachable) = false", err)
	}
	if errors.Is(err, NetworkUnreachable) {
		t.Fatalf("errors.Is(%v, NetworkUnreachable) = true", err)
	}
	if got := KindOf(err); got != HostUnreachable {
		t.Fatalf("KindOf = %v", got)
	}
	if got := KindOf(errors.New("plain")); got != Unknown {
		t.Fatalf("KindOf(plain) = %v", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(ProtocolViolation, "socks4 reply", io.ErrUnexpectedEOF)
	want := "socks4 reply: protocol violation: unexpected EOF"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("cause not unwrapped")
	}
}

func TestErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{name: "nil", err: nil, want: 0},
		{name: "proxy_unreachable_errno", err: New(ProxyUnreachable, "connect", syscall.ENETDOWN), want: syscall.ENETDOWN},
		{name: "proxy_unreachable_bare", err: New(ProxyUnreachable, "connect", nil), want: syscall.ECONNREFUSED},
		{name: "timeout", err: New(Timeout, "connect", nil), want: syscall.ETIMEDOUT},
		{name: "ttl", err: New(TTLExpired, "socks5 connect", nil), want: syscall.ETIMEDOUT},
		{name: "refused", err: New(ConnectionRefused, "socks5 connect", nil), want: syscall.ECONNREFUSED},
		{name: "not_allowed", err: New(NotAllowed, "socks5 connect", nil), want: syscall.ECONNRESET},
		{name: "net_unreach", err: New(NetworkUnreachable, "socks5 connect", nil), want: syscall.ENETUNREACH},
		{name: "host_unreach", err: New(HostUnreachable, "socks5 connect", nil), want: syscall.EHOSTUNREACH},
		{name: "violation", err: New(ProtocolViolation, "socks4 reply", nil), want: syscall.ECONNABORTED},
		{name: "aborted", err: New(Aborted, "socks5 connect", nil), want: syscall.ECONNABORTED},
		{name: "raw_errno", err: fmt.Errorf("x: %w", syscall.EPIPE), want: syscall.EPIPE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Errno(tt.err); got != tt.want {
				t.Fatalf("Errno = %v want %v", got, tt.want)
			}
		})
	}
}

func TestFromIO(t *testing.T) {
	if err := FromIO("socks4 reply", os.ErrDeadlineExceeded); !errors.Is(err, Timeout) {
		t.Fatalf("deadline: got %v", err)
	}
	err := FromIO("socks4 reply", io.EOF)
	if !errors.Is(err, ProtocolViolation) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("eof: got %v", err)
	}
	inner := New(HostUnreachable, "socks5 connect", nil)
	if got := FromIO("outer", fmt.Errorf("wrap: %w", inner)); got != inner {
		t.Fatalf("classified error rewrapped: %v", got)
	}
}
