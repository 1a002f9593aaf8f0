package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds the TCP connect. Zero means no timeout beyond the
	// caller's context.
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig
}
