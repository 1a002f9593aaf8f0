package dialer

import (
	"context"
	"fmt"
	"net"
)

// direct connects without any proxy. Keepalive is applied by net.Dialer.
type direct struct {
	nd net.Dialer
}

// NewDirectDialer returns a Dialer that connects without any proxy. A
// KeepAlive with Enable unset turns keepalive off.
func NewDirectDialer(cfg Config) Dialer {
	nd := net.Dialer{Timeout: cfg.DialTimeout, KeepAliveConfig: cfg.KeepAlive}
	if !cfg.KeepAlive.Enable {
		nd.KeepAlive = -1
	}
	return &direct{nd: nd}
}

func (d *direct) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
