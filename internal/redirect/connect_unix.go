//go:build unix

package redirect

import (
	"errors"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/die-net/dsocks/internal/proxyerr"
	"github.com/die-net/dsocks/internal/socks4"
)

// Sockaddr is a socket address as passed to connect(2).
type Sockaddr = unix.Sockaddr

type systemConnector struct{}

func (systemConnector) Connect(fd int, sa Sockaddr) error {
	return unix.Connect(fd, sa)
}

// ConnectFD connects the socket fd to sa, through the proxy when fd is a
// stream socket and sa a non-loopback IPv4 address.
//
// The socket is first connected to the proxy. A non-blocking socket is
// waited on for up to ConnectTimeout. The handshake then runs over fd with
// sa as destination; a connect to 0.0.0.2 takes the pending hidden-service
// hostname. On success fd is connected to the destination as far as the
// caller can tell.
func (s *Session) ConnectFD(fd int, sa Sockaddr) error {
	typ, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return err
	}

	sin, ok := sa.(*unix.SockaddrInet4)
	if !ok || typ != unix.SOCK_STREAM {
		return s.connector.Connect(fd, sa)
	}
	dst := netip.AddrPortFrom(netip.AddrFrom4(sin.Addr), uint16(sin.Port))
	if !redirected(dst.Addr()) {
		return s.connector.Connect(fd, sa)
	}

	if err := s.connectProxy(fd); err != nil {
		s.log.Warn("couldn't connect to proxy", "proxy", s.cfg.Proxy.String(), "error", err)
		return err
	}

	d := Destination{AddrPort: dst}
	if dst.Addr() == socks4.HiddenServiceAddr {
		d.Hostname = s.slot.Take()
	}

	c := &fdConn{fd: fd}
	if s.cfg.NegotiationTimeout > 0 {
		c.deadline = time.Now().Add(s.cfg.NegotiationTimeout)
	}
	if err := s.negotiator.Negotiate(c, d); err != nil {
		s.log.Warn("proxy negotiation failed", "proxy", s.cfg.Proxy.String(), "destination", dst.String(), "error", err)
		return err
	}
	return nil
}

func (s *Session) connectProxy(fd int) error {
	proxy := &unix.SockaddrInet4{Port: int(s.cfg.Proxy.Port), Addr: s.cfg.Proxy.Addr.As4()}

	err := s.connector.Connect(fd, proxy)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, unix.EINPROGRESS):
		return proxyerr.New(proxyerr.ProxyUnreachable, "proxy connect", err)
	}

	ready, err := pollFD(fd, unix.POLLOUT, time.Now().Add(s.cfg.ConnectTimeout))
	if err != nil {
		return proxyerr.New(proxyerr.ProxyUnreachable, "proxy connect", err)
	}
	if !ready {
		return proxyerr.New(proxyerr.Timeout, "proxy connect", syscall.ETIMEDOUT)
	}

	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return proxyerr.New(proxyerr.ProxyUnreachable, "proxy connect", err)
	}
	if soerr != 0 {
		return proxyerr.New(proxyerr.ProxyUnreachable, "proxy connect", syscall.Errno(soerr))
	}
	return nil
}

// pollFD waits until fd reports events or deadline passes. A zero deadline
// waits forever.
func pollFD(fd int, events int16, deadline time.Time) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		timeout := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
			timeout = int((remaining + time.Millisecond - 1) / time.Millisecond)
		}

		n, err := unix.Poll(fds, timeout)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return false, err
		}
		return n > 0, nil
	}
}
