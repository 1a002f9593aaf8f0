package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/dsocks/internal/relay"
	"github.com/die-net/dsocks/internal/socks5"
)

var errCommandNotSupported = errors.New("socks5: only CONNECT is supported")

// SOCKS5Server accepts no-auth SOCKS5 CONNECT requests and dials them through
// Config.Dialer.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log *slog.Logger
}

func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: cfg.logger()}
}

// Serve accepts connections until ln fails. It returns nil once the server's
// context is done.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c); err != nil && s.cfg.Verbose {
				s.log.Warn("socks5: connection error", "client", c.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func (s *SOCKS5Server) handle(conn net.Conn) error {
	defer conn.Close()
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	if err := socks5.ServerNegotiateNoAuth(conn); err != nil {
		return err
	}
	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		return err
	}
	if req.Cmd != txsocks5.CmdConnect {
		_ = socks5.WriteReply(conn, txsocks5.RepCommandNotSupported, netip.AddrPort{})
		return errCommandNotSupported
	}

	dst := req.Address()
	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		_ = socks5.WriteReply(conn, socks5.ReplyCode(err), netip.AddrPort{})
		return fmt.Errorf("dial %s: %w", dst, err)
	}
	defer up.Close()

	if err := socks5.WriteReply(conn, txsocks5.RepSuccess, boundAddr(up)); err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	if err := relay.CopyBidirectional(ctx, conn, up); err != nil {
		return fmt.Errorf("relay %s: %w", dst, err)
	}
	return nil
}

// boundAddr is the address reported to the client. Connections through the
// upstream proxy only know the local end of the proxy connection.
func boundAddr(c net.Conn) netip.AddrPort {
	ta, ok := c.LocalAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	ap := ta.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
