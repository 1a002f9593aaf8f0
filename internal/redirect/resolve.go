package redirect

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/dnsmsg"
	"github.com/die-net/dsocks/internal/proxyerr"
	"github.com/die-net/dsocks/internal/socks4"
	"github.com/die-net/dsocks/internal/tor"
)

// Resolve looks up the IPv4 addresses of name.
//
// With Tor, hidden-service names resolve to the 0.0.0.2 sentinel and are
// remembered for the next connect to it; other names are resolved by the
// proxy. With a nameserver configured the query is sent over TCP through the
// redirector, so a loopback nameserver is reached directly. Otherwise the
// Direct resolver answers.
func (s *Session) Resolve(ctx context.Context, name string) (*dnsmsg.Host, error) {
	return s.resolve(ctx, name, true)
}

// resolve implements Resolve. remember controls whether a hidden-service name
// is stored in the slot.
func (s *Session) resolve(ctx context.Context, name string, remember bool) (*dnsmsg.Host, error) {
	if addr, err := netip.ParseAddr(name); err == nil && addr.Unmap().Is4() {
		return &dnsmsg.Host{Name: name, Addrs: []netip.Addr{addr.Unmap()}}, nil
	}

	var (
		h   *dnsmsg.Host
		err error
	)
	switch {
	case s.cfg.Protocol == config.Tor:
		h, err = s.resolveTor(ctx, name, remember)
	case s.cfg.Nameserver != nil:
		h, err = s.resolveNameserver(ctx, name)
	default:
		h, err = s.resolver.LookupHost(ctx, name)
	}
	if err != nil {
		s.log.Debug("resolve failed", "name", name, "error", err)
		return nil, err
	}
	if oerr := h.Overflow(); oerr != nil {
		s.log.Debug("resolve truncated", "name", name, "error", oerr)
	}
	return h, nil
}

func (s *Session) resolveTor(ctx context.Context, name string, remember bool) (*dnsmsg.Host, error) {
	if tor.IsHiddenService(name) {
		if remember {
			s.slot.Store(name)
		}
		return &dnsmsg.Host{Name: name, Addrs: []netip.Addr{socks4.HiddenServiceAddr}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp4", s.cfg.Proxy.String())
	if err != nil {
		s.log.Warn("couldn't connect to proxy", "proxy", s.cfg.Proxy.String(), "error", err)
		return nil, proxyerr.New(proxyerr.ProxyUnreachable, "tor resolve", err)
	}
	defer conn.Close()
	setDeadline(ctx, conn)

	addr, err := tor.Resolve(conn, name)
	if err != nil {
		return nil, err
	}
	return &dnsmsg.Host{Name: name, Addrs: []netip.Addr{addr}}, nil
}

func (s *Session) resolveNameserver(ctx context.Context, name string) (*dnsmsg.Host, error) {
	query, id, err := dnsmsg.EncodeQuery(name, dns.TypeA)
	if err != nil {
		return nil, err
	}
	framed, err := dnsmsg.Frame(query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	defer cancel()

	ns := s.cfg.Nameserver.String()
	conn, err := s.DialContext(ctx, "tcp4", ns)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	setDeadline(ctx, conn)

	if _, err := conn.Write(framed); err != nil {
		return nil, proxyerr.FromIO("dns query", err)
	}
	answer, err := dnsmsg.ReadFrame(conn)
	if err != nil {
		s.log.Warn("no answer from nameserver", "nameserver", ns, "error", err)
		return nil, err
	}
	if got, _ := dnsmsg.ID(answer); got != id {
		return nil, proxyerr.New(proxyerr.MalformedMessage, "dns answer", fmt.Errorf("transaction id %d, want %d", got, id))
	}
	return dnsmsg.Decode(answer, name, dns.TypeA)
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// setDeadline applies ctx's deadline, if any, to conn.
func setDeadline(ctx context.Context, conn deadliner) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
}
