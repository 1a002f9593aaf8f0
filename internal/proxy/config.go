package proxy

import (
	"log/slog"
	"time"

	"github.com/die-net/dsocks/internal/dialer"
)

type Config struct {
	// NegotiationTimeout bounds reading a client's SOCKS request or HTTP
	// headers. Zero means no deadline.
	NegotiationTimeout time.Duration

	HTTPIdleTimeout  time.Duration
	HTTPMaxIdleConns int

	// Dialer reaches requested destinations, normally a redirect.Session.
	Dialer dialer.Dialer

	Log *slog.Logger
	// Verbose enables per-connection error logging.
	Verbose bool
}

func (c Config) logger() *slog.Logger {
	if c.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Log
}
