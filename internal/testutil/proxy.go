package testutil

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/socks4"
	"github.com/die-net/dsocks/internal/socks5"
)

// ProxyRequest is what a mock proxy was asked to do.
type ProxyRequest struct {
	Command  byte
	Dst      netip.AddrPort
	UserID   string
	Hostname string
}

// MockProxy is a loopback proxy that records requests. After answering a
// CONNECT with success it echoes, standing in for the destination.
type MockProxy struct {
	Addr netip.AddrPort

	mu   sync.Mutex
	reqs []ProxyRequest
}

func (p *MockProxy) record(r ProxyRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, r)
}

// Requests returns the requests seen so far.
func (p *MockProxy) Requests() []ProxyRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProxyRequest(nil), p.reqs...)
}

// StartSOCKS4Proxy answers every CONNECT with code. RESOLVE requests are
// answered from names; unknown names get ReplyRejected.
func StartSOCKS4Proxy(t testing.TB, ctx context.Context, code byte, names map[string]netip.Addr) *MockProxy {
	t.Helper()

	p := &MockProxy{}
	p.Addr = StartServer(t, ctx, func(c net.Conn) {
		req, err := socks4.ReadRequest(c)
		if err != nil {
			return
		}
		p.record(ProxyRequest{Command: req.Command, Dst: req.Dst, UserID: req.UserID, Hostname: req.Hostname})

		if req.Command == socks4.CmdResolve {
			addr, ok := names[req.Hostname]
			if !ok {
				_ = socks4.WriteReply(c, socks4.ReplyRejected, netip.AddrPort{})
				return
			}
			_ = socks4.WriteReply(c, socks4.ReplyGranted, netip.AddrPortFrom(addr, 0))
			return
		}

		if err := socks4.WriteReply(c, code, netip.AddrPort{}); err != nil || code != socks4.ReplyGranted {
			return
		}
		Echo(c)
	})
	return p
}

// StartSOCKS5Proxy answers every CONNECT with rep.
func StartSOCKS5Proxy(t testing.TB, ctx context.Context, rep byte) *MockProxy {
	t.Helper()

	p := &MockProxy{}
	p.Addr = StartServer(t, ctx, func(c net.Conn) {
		if err := socks5.ServerNegotiateNoAuth(c); err != nil {
			return
		}
		req, err := socks5.ServerReadRequest(c)
		if err != nil {
			return
		}
		dst, _ := netip.ParseAddrPort(req.Address())
		p.record(ProxyRequest{Command: req.Cmd, Dst: dst})

		if err := socks5.WriteReply(c, rep, netip.AddrPort{}); err != nil || rep != txsocks5.RepSuccess {
			return
		}
		Echo(c)
	})
	return p
}

// Endpoint returns the proxy address in the form the configuration uses.
func (p *MockProxy) Endpoint() config.Endpoint {
	return config.Endpoint{Addr: p.Addr.Addr(), Port: p.Addr.Port()}
}
