// Package relay moves bytes between an accepted connection and the
// connection dialed for it.
package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

type closeWriter interface {
	CloseWrite() error
}

// CopyBidirectional copies in both directions until both reach EOF or ctx is
// done, then closes both connections. When one direction ends, the write side
// of its destination is shut down if the connection supports it.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	pipe := func(dst, src net.Conn) func() error {
		return func() error {
			_, err := io.Copy(dst, src)
			if cw, ok := dst.(closeWriter); ok && err == nil {
				_ = cw.CloseWrite()
				return nil
			}
			// No half-close: closing both is the only way to pass on EOF.
			closeBoth()
			return err
		}
	}
	g.Go(pipe(left, right))
	g.Go(pipe(right, left))

	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}
