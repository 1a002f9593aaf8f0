// Package testutil holds loopback servers and mock proxies shared by tests.
package testutil

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
)

func listen(t testing.TB, ctx context.Context) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return ln
}

func addrOf(ln net.Listener) netip.AddrPort {
	ap := ln.Addr().(*net.TCPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// StartSingleAcceptServer accepts one connection and passes it to handler.
// wait closes the listener and blocks until handler returns.
func StartSingleAcceptServer(t testing.TB, ctx context.Context, handler func(net.Conn)) (netip.AddrPort, func()) {
	t.Helper()

	ln := listen(t, ctx)

	var wg sync.WaitGroup
	wg.Go(func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	})

	wait := func() {
		_ = ln.Close()
		wg.Wait()
	}
	t.Cleanup(wait)

	return addrOf(ln), wait
}

// StartServer runs handler for every accepted connection until the test ends.
func StartServer(t testing.TB, ctx context.Context, handler func(net.Conn)) netip.AddrPort {
	t.Helper()

	ln := listen(t, ctx)

	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Go(func() {
				defer c.Close()
				handler(c)
			})
		}
	})
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})

	return addrOf(ln)
}

// ClosedPort returns a loopback address nothing listens on.
func ClosedPort(t testing.TB, ctx context.Context) netip.AddrPort {
	t.Helper()

	ln := listen(t, ctx)
	ap := addrOf(ln)
	_ = ln.Close()
	return ap
}
