package redirect

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/die-net/dsocks/internal/dnsmsg"
	"github.com/die-net/dsocks/internal/socks4"
	"github.com/die-net/dsocks/internal/socks5"
)

// Connector performs an unredirected connect(2) on a socket.
type Connector interface {
	Connect(fd int, sa Sockaddr) error
}

// Resolver looks up IPv4 addresses without going through the proxy.
type Resolver interface {
	LookupHost(ctx context.Context, name string) (*dnsmsg.Host, error)
}

// SystemResolver resolves through a net.Resolver, net.DefaultResolver when
// Resolver is nil.
type SystemResolver struct {
	Resolver *net.Resolver
}

func (r SystemResolver) LookupHost(ctx context.Context, name string) (*dnsmsg.Host, error) {
	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}

	addrs, err := res.LookupNetIP(ctx, "ip4", name)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}

	h := &dnsmsg.Host{Name: name}
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			h.AddAddr(a)
		}
	}
	if len(h.Addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: no IPv4 addresses", name)
	}
	return h, nil
}

// Destination is what a negotiator asks the proxy to connect to. Hostname is
// only sent for the hidden-service sentinel.
type Destination struct {
	AddrPort netip.AddrPort
	Hostname string
}

// Negotiator runs a proxy handshake over an established transport.
type Negotiator interface {
	Negotiate(rw io.ReadWriter, dst Destination) error
}

type socks4Negotiator struct {
	user string
}

func (n socks4Negotiator) Negotiate(rw io.ReadWriter, dst Destination) error {
	return socks4.Negotiate(rw, dst.AddrPort, n.user, dst.Hostname)
}

type socks5Negotiator struct{}

func (socks5Negotiator) Negotiate(rw io.ReadWriter, dst Destination) error {
	return socks5.Negotiate(rw, dst.AddrPort)
}
