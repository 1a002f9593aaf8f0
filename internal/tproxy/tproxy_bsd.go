//go:build freebsd || openbsd

package tproxy

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/die-net/dsocks/internal/relay"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = true

// ListenTransparentTCP listens on addr with the platform's bind-any option so
// the socket can accept connections redirected by IPFW fwd or PF rdr-to.
//
// This requires root. Callers still need the firewall rules.
func ListenTransparentTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = bindAny(int(fd), network)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return &relay.KeepAliveListener{Listener: ln, KeepAliveConfig: ka}, nil
}

// OriginalDst returns the local address of c, which the firewall preserves as
// the original destination.
func OriginalDst(c net.Conn) (netip.AddrPort, bool) {
	ap := addrPortOf(c.LocalAddr())
	return ap, ap.IsValid()
}
