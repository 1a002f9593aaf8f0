// Package config holds the settings of a redirector session and reads them
// from the DSOCKS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os/user"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by FromEnv.
const (
	EnvVersion    = "DSOCKS_VERSION"
	EnvTor        = "DSOCKS_TOR"
	EnvProxy      = "DSOCKS_PROXY"
	EnvNameserver = "DSOCKS_NAMESERVER"
	EnvUser       = "USER"
)

const (
	DefaultProxyPort      uint16 = 1080
	DefaultNameserverPort uint16 = 53

	DefaultConnectTimeout = 30 * time.Second
	DefaultResolveTimeout = 5 * time.Second

	// MaxUserLen bounds the SOCKS4 user id.
	MaxUserLen = 8
)

// DefaultProxy is used when no proxy is configured.
var DefaultProxy = Endpoint{Addr: netip.AddrFrom4([4]byte{127, 0, 0, 1}), Port: DefaultProxyPort}

// Protocol selects the proxy dialect of a session.
type Protocol int

const (
	SOCKS4 Protocol = iota
	SOCKS5
	Tor
)

func (p Protocol) String() string {
	switch p {
	case SOCKS4:
		return "4"
	case SOCKS5:
		return "5"
	case Tor:
		return "tor"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocol accepts "4", "5" or "tor" (any case).
func ParseProtocol(s string) (Protocol, error) {
	switch {
	case s == "4":
		return SOCKS4, nil
	case s == "5":
		return SOCKS5, nil
	case strings.EqualFold(s, "tor"):
		return Tor, nil
	default:
		return 0, fmt.Errorf("unsupported version %q", s)
	}
}

// Set implements pflag.Value.
func (p *Protocol) Set(s string) error {
	v, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Type implements pflag.Value.
func (p *Protocol) Type() string {
	return "version"
}

// Endpoint is an IPv4 address and non-zero port.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

var errPortZero = errors.New("port must be non-zero")

// ParseEndpoint parses "a.b.c.d[:port]", using defaultPort when the port is
// omitted.
func ParseEndpoint(s string, defaultPort uint16) (Endpoint, error) {
	host, portStr, hasPort := strings.Cut(s, ":")

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	if !addr.Is4() {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: not an IPv4 address", s)
	}

	port := defaultPort
	if hasPort {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid endpoint %q: port: %w", s, err)
		}
		port = uint16(n)
	}
	if port == 0 {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, errPortZero)
	}
	return Endpoint{Addr: addr, Port: port}, nil
}

func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

func (e Endpoint) String() string {
	return e.AddrPort().String()
}

// Config is the immutable configuration of a session.
type Config struct {
	Protocol Protocol
	Proxy    Endpoint
	// Nameserver, when set, receives DNS queries over TCP through the proxy.
	Nameserver *Endpoint
	// User is the SOCKS4 user id, at most MaxUserLen bytes.
	User string

	// ConnectTimeout bounds a non-blocking connect to the proxy.
	ConnectTimeout time.Duration
	// ResolveTimeout bounds one DNS or Tor resolve exchange.
	ResolveTimeout time.Duration
	// NegotiationTimeout bounds the proxy handshake on the Go-native path.
	// Zero means no deadline.
	NegotiationTimeout time.Duration
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Protocol:       SOCKS4,
		Proxy:          DefaultProxy,
		ConnectTimeout: DefaultConnectTimeout,
		ResolveTimeout: DefaultResolveTimeout,
	}
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv builds a Config from the environment.
func FromEnv(lookup LookupFunc) (Config, error) {
	cfg := Default()

	if v, ok := lookup(EnvVersion); ok {
		p, err := ParseProtocol(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvVersion, err)
		}
		cfg.Protocol = p
	}
	// Kept for older setups that only set the Tor flag.
	if _, ok := lookup(EnvTor); ok {
		cfg.Protocol = Tor
	}

	if v, ok := lookup(EnvProxy); ok {
		ep, err := ParseEndpoint(v, DefaultProxyPort)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvProxy, err)
		}
		cfg.Proxy = ep
	}

	if v, ok := lookup(EnvNameserver); ok {
		ep, err := ParseEndpoint(v, DefaultNameserverPort)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvNameserver, err)
		}
		cfg.Nameserver = &ep
	}

	cfg.User = CurrentUser(lookup)
	return cfg, nil
}

var currentUser = user.Current

// CurrentUser returns the login name of the current account, falling back to
// $USER, truncated to MaxUserLen bytes.
func CurrentUser(lookup LookupFunc) string {
	if u, err := currentUser(); err == nil && u.Username != "" {
		return TruncateUser(u.Username)
	}
	v, _ := lookup(EnvUser)
	return TruncateUser(v)
}

// TruncateUser cuts s to MaxUserLen bytes.
func TruncateUser(s string) string {
	if len(s) > MaxUserLen {
		return s[:MaxUserLen]
	}
	return s
}
