package dialer

import (
	"context"
	"net"
)

// Dialer mirrors the net.Dialer interface. It is also satisfied by
// golang.org/x/net/proxy.ContextDialer implementations.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Func adapts a function to a Dialer.
type Func func(ctx context.Context, network, address string) (net.Conn, error)

func (f Func) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}
