package redirect

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/dialer"
)

// Session is one configured redirector. It is safe for concurrent use.
type Session struct {
	cfg        config.Config
	log        *slog.Logger
	negotiator Negotiator
	connector  Connector
	resolver   Resolver
	dialer     dialer.Dialer
	slot       HiddenServiceSlot
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Sessions are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithConnector sets the Direct connect(2) used by ConnectFD.
func WithConnector(c Connector) Option {
	return func(s *Session) { s.connector = c }
}

// WithResolver sets the Direct resolver used when neither Tor nor a
// nameserver is configured.
func WithResolver(r Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithDialer sets the Direct dialer used by DialContext to reach the proxy,
// the Tor resolver and unredirected destinations.
func WithDialer(d dialer.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

var errNoProxy = errors.New("proxy endpoint is not set")

// New returns a Session for cfg.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	if !cfg.Proxy.Addr.Is4() || cfg.Proxy.Port == 0 {
		return nil, fmt.Errorf("redirect: %w: %v", errNoProxy, cfg.Proxy)
	}
	if ns := cfg.Nameserver; ns != nil && (!ns.Addr.Is4() || ns.Port == 0) {
		return nil, fmt.Errorf("redirect: invalid nameserver %v", *ns)
	}
	cfg.User = config.TruncateUser(cfg.User)
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = config.DefaultConnectTimeout
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = config.DefaultResolveTimeout
	}

	s := &Session{
		cfg:       cfg,
		log:       slog.New(slog.DiscardHandler),
		connector: systemConnector{},
		resolver:  SystemResolver{},
		dialer:    dialer.NewDirectDialer(dialer.Config{DialTimeout: cfg.ConnectTimeout}),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch cfg.Protocol {
	case config.SOCKS4, config.Tor:
		s.negotiator = socks4Negotiator{user: cfg.User}
	case config.SOCKS5:
		s.negotiator = socks5Negotiator{}
	default:
		return nil, fmt.Errorf("redirect: unsupported protocol %v", cfg.Protocol)
	}

	return s, nil
}

// Config returns the effective configuration.
func (s *Session) Config() config.Config {
	return s.cfg
}

// redirected reports whether a connection to addr goes through the proxy.
func redirected(addr netip.Addr) bool {
	return addr.Is4() && !addr.IsLoopback()
}
