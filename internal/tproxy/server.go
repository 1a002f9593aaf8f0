package tproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/die-net/dsocks/internal/dialer"
	"github.com/die-net/dsocks/internal/relay"
)

var (
	errNoOriginalDst = errors.New("original destination unavailable")
	errSelfDst       = errors.New("destination is the proxy listener")
)

// Server relays transparently redirected connections to their original
// destination through Dialer.
type Server struct {
	ctx     context.Context
	Dialer  dialer.Dialer
	Log     *slog.Logger
	Verbose bool

	originalDst func(net.Conn) (netip.AddrPort, bool)
	isLocal     func(netip.Addr) bool
}

// NewServer returns a Server dialing through d. Per-connection errors are
// logged only when verbose is set.
func NewServer(ctx context.Context, d dialer.Dialer, log *slog.Logger, verbose bool) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{ctx: ctx, Dialer: d, Log: log, Verbose: verbose, originalDst: OriginalDst, isLocal: isLocalAddr}
}

// Serve accepts connections until ln fails. It returns nil once the server's
// context is done.
func (s *Server) Serve(ln net.Listener) error {
	self := addrPortOf(ln.Addr())
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c, self); err != nil && s.Verbose {
				s.Log.Warn("tproxy: connection error", "client", c.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn, self netip.AddrPort) error {
	defer conn.Close()
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dst, ok := s.originalDst(conn)
	if !ok {
		return errNoOriginalDst
	}
	if s.isSelf(dst, self) {
		return fmt.Errorf("%s: %w", dst, errSelfDst)
	}

	up, err := s.Dialer.DialContext(ctx, "tcp", dst.String())
	if err != nil {
		return fmt.Errorf("dial %s: %w", dst, err)
	}
	defer up.Close()

	if err := relay.CopyBidirectional(ctx, conn, up); err != nil {
		return fmt.Errorf("relay %s: %w", dst, err)
	}
	return nil
}

// isSelf reports whether dst reaches the listener bound to self. A wildcard
// listener is reached on any local address.
func (s *Server) isSelf(dst, self netip.AddrPort) bool {
	if !self.IsValid() || dst.Port() != self.Port() {
		return false
	}
	if dst.Addr() == self.Addr() {
		return true
	}
	return self.Addr().IsUnspecified() && s.isLocal(dst.Addr())
}

func addrPortOf(a net.Addr) netip.AddrPort {
	ta, ok := a.(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	ap := ta.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func isLocalAddr(addr netip.Addr) bool {
	if addr.IsLoopback() || addr.IsUnspecified() {
		return true
	}
	ifaddrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, ia := range ifaddrs {
		if ipn, ok := ia.(*net.IPNet); ok {
			if a, ok := netip.AddrFromSlice(ipn.IP); ok && a.Unmap() == addr {
				return true
			}
		}
	}
	return false
}
