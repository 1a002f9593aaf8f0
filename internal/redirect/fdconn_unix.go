//go:build unix

package redirect

import (
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fdConn does blocking reads and writes on a raw socket that may be in
// non-blocking mode. A deadline is enforced with poll(2) whatever the mode.
// It does not own fd.
type fdConn struct {
	fd       int
	deadline time.Time
}

func (c *fdConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if err := c.waitDeadline(unix.POLLIN); err != nil {
			return 0, err
		}
		n, err := unix.Read(c.fd, p)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := c.wait(unix.POLLIN); err != nil {
				return 0, err
			}
		default:
			return 0, err
		}
	}
}

func (c *fdConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if err := c.waitDeadline(unix.POLLOUT); err != nil {
			return written, err
		}
		n, err := unix.Write(c.fd, p[written:])
		switch {
		case err == nil:
			written += n
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := c.wait(unix.POLLOUT); err != nil {
				return written, err
			}
		default:
			return written, err
		}
	}
	return written, nil
}

func (c *fdConn) wait(events int16) error {
	ready, err := pollFD(c.fd, events, c.deadline)
	if err != nil {
		return err
	}
	if !ready {
		return os.ErrDeadlineExceeded
	}
	return nil
}

// waitDeadline polls before I/O when a deadline is set, so a blocking socket
// cannot outlive it.
func (c *fdConn) waitDeadline(events int16) error {
	if c.deadline.IsZero() {
		return nil
	}
	return c.wait(events)
}
