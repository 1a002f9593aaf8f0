package tproxy

import "golang.org/x/sys/unix"

// OpenBSD's option is socket-level, unlike FreeBSD's.
func bindAny(fd int, _ string) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BINDANY, 1)
}
