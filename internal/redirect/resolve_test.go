package redirect

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/proxyerr"
	"github.com/die-net/dsocks/internal/socks4"
	"github.com/die-net/dsocks/internal/testutil"
)

func TestResolveTorHiddenService(t *testing.T) {
	s := newSession(t, testConfig(config.Tor, config.DefaultProxy), WithDialer(noNetwork(t)))

	h, err := s.Resolve(context.Background(), "expyuzz4wqqyqhjn.onion")
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "expyuzz4wqqyqhjn.onion" || len(h.Addrs) != 1 || h.Addrs[0] != socks4.HiddenServiceAddr || len(h.Aliases) != 0 {
		t.Fatalf("unexpected host %+v", h)
	}
	if got := s.slot.peek(); got != "expyuzz4wqqyqhjn.onion" {
		t.Fatalf("slot %q", got)
	}
}

func TestResolveTor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	want := netip.MustParseAddr("93.184.216.34")
	p := testutil.StartSOCKS4Proxy(t, ctx, socks4.ReplyGranted, map[string]netip.Addr{"example.com": want})
	s := newSession(t, testConfig(config.Tor, p.Endpoint()))

	h, err := s.Resolve(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "example.com" || h.Addr() != want {
		t.Fatalf("unexpected host %+v", h)
	}

	reqs := p.Requests()
	if len(reqs) != 1 || reqs[0].Command != socks4.CmdResolve || reqs[0].Hostname != "example.com" || reqs[0].UserID != "" {
		t.Fatalf("unexpected requests %+v", reqs)
	}

	if _, err := s.Resolve(ctx, "unknown.example"); !errors.Is(err, proxyerr.ProtocolViolation) {
		t.Fatalf("got %v want protocol violation", err)
	}
	if got := s.slot.peek(); got != "" {
		t.Fatalf("slot %q", got)
	}
}

func TestResolveTorProxyUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	closed := testutil.ClosedPort(t, ctx)
	s := newSession(t, testConfig(config.Tor, config.Endpoint{Addr: closed.Addr(), Port: closed.Port()}))

	_, err := s.Resolve(ctx, "example.com")
	if !errors.Is(err, proxyerr.ProxyUnreachable) {
		t.Fatalf("got %v want proxy unreachable", err)
	}
}

func TestResolveNameserverLoopback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	addrs := []netip.Addr{netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("192.0.2.2")}
	ns := testutil.StartDNSServer(t, ctx, testutil.AnswerA(addrs...))

	// The proxy is never contacted: the nameserver is on loopback.
	cfg := testConfig(config.SOCKS4, config.DefaultProxy)
	cfg.Nameserver = &config.Endpoint{Addr: ns.Addr(), Port: ns.Port()}
	s := newSession(t, cfg)

	h, err := s.Resolve(ctx, "www.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "www.example.com" || len(h.Addrs) != 2 || h.Addrs[0] != addrs[0] || h.Addrs[1] != addrs[1] {
		t.Fatalf("unexpected host %+v", h)
	}
}

func TestResolveNameserverIDMismatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ns := testutil.StartDNSServer(t, ctx, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		m.Id++
		_ = w.WriteMsg(m)
	})

	cfg := testConfig(config.SOCKS4, config.DefaultProxy)
	cfg.Nameserver = &config.Endpoint{Addr: ns.Addr(), Port: ns.Port()}
	s := newSession(t, cfg)

	if _, err := s.Resolve(ctx, "www.example.com"); !errors.Is(err, proxyerr.MalformedMessage) {
		t.Fatalf("got %v want malformed message", err)
	}
}

func TestResolveNameserverThroughProxy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The mock proxy echoes the query back, which carries no answers.
	p := testutil.StartSOCKS4Proxy(t, ctx, socks4.ReplyGranted, nil)

	cfg := testConfig(config.SOCKS4, p.Endpoint())
	cfg.Nameserver = &config.Endpoint{Addr: netip.MustParseAddr("192.0.2.53"), Port: 53}
	s := newSession(t, cfg)

	_, err := s.Resolve(ctx, "www.example.com")
	if !errors.Is(err, proxyerr.AnswerIncomplete) {
		t.Fatalf("got %v want answer incomplete", err)
	}

	reqs := p.Requests()
	if len(reqs) != 1 || reqs[0].Command != socks4.CmdConnect || reqs[0].Dst.String() != "192.0.2.53:53" || reqs[0].UserID != "alice" {
		t.Fatalf("unexpected requests %+v", reqs)
	}
}

func TestResolveNameserverTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ns := testutil.StartServer(t, ctx, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})

	cfg := testConfig(config.SOCKS4, config.DefaultProxy)
	cfg.Nameserver = &config.Endpoint{Addr: ns.Addr(), Port: ns.Port()}
	cfg.ResolveTimeout = 100 * time.Millisecond
	s := newSession(t, cfg)

	if _, err := s.Resolve(ctx, "www.example.com"); !errors.Is(err, proxyerr.Timeout) {
		t.Fatalf("got %v want timeout", err)
	}
}

func TestResolveDirect(t *testing.T) {
	want := netip.MustParseAddr("198.51.100.7")
	s := newSession(t, testConfig(config.SOCKS5, config.DefaultProxy),
		WithDialer(noNetwork(t)),
		WithResolver(staticResolver{"db.internal": {want}}))

	h, err := s.Resolve(context.Background(), "db.internal")
	if err != nil {
		t.Fatal(err)
	}
	if h.Addr() != want {
		t.Fatalf("got %v", h.Addr())
	}

	if _, err := s.Resolve(context.Background(), "missing.internal"); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolveLiteral(t *testing.T) {
	s := newSession(t, testConfig(config.Tor, config.DefaultProxy), WithDialer(noNetwork(t)))

	h, err := s.Resolve(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatal(err)
	}
	if h.Addr() != netip.MustParseAddr("203.0.113.9") {
		t.Fatalf("got %+v", h)
	}
}
