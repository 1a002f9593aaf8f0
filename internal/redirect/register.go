package redirect

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"

	"golang.org/x/net/proxy"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/dialer"
)

const defaultTorPort uint16 = 9050

var registerOnce sync.Once

// RegisterProxySchemes makes socks4://[user@]a.b.c.d[:port] and
// tor://a.b.c.d[:port] usable with proxy.FromURL. The proxy host must be an
// IPv4 literal. Safe to call more than once.
func RegisterProxySchemes() {
	registerOnce.Do(func() {
		proxy.RegisterDialerType("socks4", fromURL(config.SOCKS4, config.DefaultProxyPort))
		proxy.RegisterDialerType("tor", fromURL(config.Tor, defaultTorPort))
	})
}

func fromURL(p config.Protocol, defaultPort uint16) func(*url.URL, proxy.Dialer) (proxy.Dialer, error) {
	return func(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		ep, err := config.ParseEndpoint(u.Host, defaultPort)
		if err != nil {
			return nil, fmt.Errorf("%s proxy: %w", u.Scheme, err)
		}

		cfg := config.Default()
		cfg.Protocol = p
		cfg.Proxy = ep
		if u.User != nil {
			cfg.User = u.User.Username()
		} else {
			cfg.User = config.CurrentUser(os.LookupEnv)
		}

		s, err := New(cfg, WithDialer(forwardDialer(forward)))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// forwardDialer adapts the dialer proxy.FromURL hands us. Dialers without
// DialContext ignore cancellation.
func forwardDialer(forward proxy.Dialer) dialer.Dialer {
	if cd, ok := forward.(proxy.ContextDialer); ok {
		return cd
	}
	return dialer.Func(func(_ context.Context, network, address string) (net.Conn, error) {
		return forward.Dial(network, address)
	})
}
