package redirect

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/proxyerr"
	"github.com/die-net/dsocks/internal/socks4"
	"github.com/die-net/dsocks/internal/tor"
)

// DialContext connects to address through the proxy when address is an IPv4
// TCP destination outside loopback, and directly otherwise. Hostnames are
// resolved with the session's resolution policy; with Tor, hidden-service
// names are handed to the proxy as they are.
//
// If NegotiationTimeout is set, a deadline is applied during the proxy
// handshake and cleared before returning.
func (s *Session) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return s.dialer.DialContext(ctx, network, address)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := net.DefaultResolver.LookupPort(ctx, network, portStr)
	if err != nil {
		return nil, err
	}

	var dst Destination
	switch addr, err := netip.ParseAddr(host); {
	case err == nil:
		addr = addr.Unmap()
		if !redirected(addr) {
			return s.dialer.DialContext(ctx, network, address)
		}
		dst.AddrPort = netip.AddrPortFrom(addr, uint16(port))
	case s.cfg.Protocol == config.Tor && tor.IsHiddenService(host):
		dst = Destination{AddrPort: netip.AddrPortFrom(socks4.HiddenServiceAddr, uint16(port)), Hostname: host}
	default:
		h, err := s.resolve(ctx, host, false)
		if err != nil {
			return nil, err
		}
		ap := netip.AddrPortFrom(h.Addr(), uint16(port))
		if !redirected(ap.Addr()) {
			return s.dialer.DialContext(ctx, network, ap.String())
		}
		dst.AddrPort = ap
	}

	return s.dialProxy(ctx, dst)
}

// Dial implements golang.org/x/net/proxy.Dialer.
func (s *Session) Dial(network, address string) (net.Conn, error) {
	return s.DialContext(context.Background(), network, address)
}

func (s *Session) dialProxy(ctx context.Context, dst Destination) (net.Conn, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp4", s.cfg.Proxy.String())
	if err != nil {
		s.log.Warn("couldn't connect to proxy", "proxy", s.cfg.Proxy.String(), "error", err)
		return nil, proxyerr.New(proxyerr.ProxyUnreachable, "proxy connect", err)
	}

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})

	err = s.negotiator.Negotiate(conn, dst)
	stop()
	if err == nil {
		// ctx may have expired after the reply, leaving the deadline set.
		err = ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		s.log.Warn("proxy negotiation failed", "proxy", s.cfg.Proxy.String(), "destination", dst.AddrPort.String(), "error", err)
		return nil, err
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}
