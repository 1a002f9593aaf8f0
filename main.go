package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/dialer"
	"github.com/die-net/dsocks/internal/dnsmsg"
	"github.com/die-net/dsocks/internal/dnsproxy"
	"github.com/die-net/dsocks/internal/proxy"
	"github.com/die-net/dsocks/internal/redirect"
	"github.com/die-net/dsocks/internal/relay"
	"github.com/die-net/dsocks/internal/tproxy"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet("dsocks", pflag.ContinueOnError)
	fs.Var(&cfg.Protocol, "protocol", "Proxy protocol: 4 | 5 | tor (default from DSOCKS_VERSION, DSOCKS_TOR)")
	var (
		proxyAddr      = fs.String("proxy", cfg.Proxy.String(), "SOCKS proxy address a.b.c.d[:port] (default from DSOCKS_PROXY)")
		nameserverAddr = fs.String("nameserver", endpointString(cfg.Nameserver), "Nameserver a.b.c.d[:port] queried over TCP; empty uses the system resolver (default from DSOCKS_NAMESERVER)")
		user           = fs.String("user", cfg.User, "SOCKS4 user id, truncated to 8 bytes")

		httpListen   = fs.String("http-listen", "", "HTTP proxy listen address (e.g. 127.0.0.1:8080). Empty disables.")
		socksListen  = fs.String("socks5-listen", "", "SOCKS5 proxy listen address (e.g. 127.0.0.1:1081). Empty disables.")
		dnsListen    = fs.String("dns-listen", "", "DNS relay listen address, UDP and TCP (e.g. 127.0.0.1:5353). Empty disables.")
		tproxyListen = fs.String("tproxy-listen", "", "Transparent proxy listen address (e.g. 127.0.0.1:1234). Empty disables.")
		debugListen  = fs.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")

		connectTimeout     = fs.Duration("connect-timeout", cfg.ConnectTimeout, "Timeout for the TCP connect to the proxy")
		resolveTimeout     = fs.Duration("resolve-timeout", cfg.ResolveTimeout, "Timeout for a nameserver or Tor resolve reply")
		negotiationTimeout = fs.Duration("negotiation-timeout", 10*time.Second, "Timeout for protocol negotiation to set up connection")
		httpIdleTimeout    = fs.Duration("http-idle-timeout", 4*time.Minute, "Timeout for idle HTTP proxy connections")
		httpMaxIdleConns   = fs.Int("http-max-idle-conns", 100, "Maximum number of idle HTTP proxy connections")
		tcpKeepAlive       = fs.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose            = fs.Bool("verbose", false, "Enable per-connection and per-query logging")
	)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: dsocks [flags] [hostname ...]")
		fs.PrintDefaults()
	}

	if !tproxy.IsSupported {
		_ = fs.MarkHidden("tproxy-listen")
	}

	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if cfg.Proxy, err = config.ParseEndpoint(*proxyAddr, config.DefaultProxyPort); err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}
	cfg.Nameserver = nil
	if *nameserverAddr != "" {
		ns, err := config.ParseEndpoint(*nameserverAddr, config.DefaultNameserverPort)
		if err != nil {
			return fmt.Errorf("invalid --nameserver: %w", err)
		}
		cfg.Nameserver = &ns
	}
	cfg.User = *user
	cfg.ConnectTimeout = *connectTimeout
	cfg.ResolveTimeout = *resolveTimeout
	cfg.NegotiationTimeout = *negotiationTimeout

	hosts := fs.Args()
	listening := *httpListen != "" || *socksListen != "" || *dnsListen != "" || *tproxyListen != ""
	if len(hosts) == 0 && !listening {
		return errors.New("nothing to do (give hostnames to resolve or set at least one of --http-listen, --socks5-listen, --dns-listen, --tproxy-listen)")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sessLog := slog.New(slog.DiscardHandler)
	if *verbose {
		sessLog = logger
	}
	sess, err := redirect.New(cfg,
		redirect.WithLogger(sessLog),
		redirect.WithDialer(dialer.NewDirectDialer(dialer.Config{DialTimeout: cfg.ConnectTimeout, KeepAlive: ka})),
	)
	if err != nil {
		return err
	}
	redirect.RegisterProxySchemes()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(hosts) > 0 {
		if err := resolveAll(ctx, sess, hosts, stdout); err != nil {
			return err
		}
		if !listening {
			return nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		debugLn, err := relay.ListenTCP(ctx, "tcp", *debugListen, ka)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", "addr", *debugListen)
	}

	pcfg := proxy.Config{
		NegotiationTimeout: cfg.NegotiationTimeout,
		HTTPIdleTimeout:    *httpIdleTimeout,
		HTTPMaxIdleConns:   *httpMaxIdleConns,
		Dialer:             sess,
		Log:                logger,
		Verbose:            *verbose,
	}
	eff := sess.Config()

	if *httpListen != "" {
		ln, err := relay.ListenTCP(ctx, "tcp", *httpListen, ka)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		srv := proxy.NewHTTPProxyServer(ctx, pcfg)
		context.AfterFunc(ctx, func() {
			_ = srv.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http proxy serve: %w", err)
			}
			return nil
		})
		logger.Info("http proxy listening", "addr", *httpListen, "proxy", eff.Proxy.String(), "protocol", eff.Protocol.String())
	}

	if *socksListen != "" {
		ln, err := relay.ListenTCP(ctx, "tcp", *socksListen, ka)
		if err != nil {
			return fmt.Errorf("socks5 listen: %w", err)
		}
		s5 := proxy.NewSOCKS5Server(ctx, pcfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := s5.Serve(ln); err != nil {
				return fmt.Errorf("socks5 serve: %w", err)
			}
			return nil
		})
		logger.Info("socks5 proxy listening", "addr", *socksListen, "proxy", eff.Proxy.String(), "protocol", eff.Protocol.String())
	}

	if *dnsListen != "" {
		pc, ln, err := dnsproxy.Listen(ctx, *dnsListen)
		if err != nil {
			return fmt.Errorf("dns listen: %w", err)
		}
		dsrv := dnsproxy.NewServer(ctx, sess, logger, *verbose)

		g.Go(func() error {
			return dsrv.Serve(ctx, pc, ln)
		})
		logger.Info("dns relay listening", "addr", pc.LocalAddr().String(), "protocol", eff.Protocol.String())
	}

	if *tproxyListen != "" {
		ln, err := tproxy.ListenTransparentTCP(ctx, *tproxyListen, ka)
		if err != nil {
			return fmt.Errorf("tproxy listen: %w", err)
		}
		tsrv := tproxy.NewServer(ctx, sess, logger, *verbose)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := tsrv.Serve(ln); err != nil {
				return fmt.Errorf("tproxy serve: %w", err)
			}
			return nil
		})
		logger.Info("tproxy listening", "addr", *tproxyListen, "proxy", eff.Proxy.String(), "protocol", eff.Protocol.String())
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// resolveAll prints one line per hostname and returns the joined failures.
func resolveAll(ctx context.Context, r dnsproxy.Resolver, hosts []string, w io.Writer) error {
	var errs []error
	for _, name := range hosts {
		h, err := r.Resolve(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Fprintln(w, formatHost(name, h))
	}
	return errors.Join(errs...)
}

func formatHost(name string, h *dnsmsg.Host) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" ->")
	for i, a := range h.Addrs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	if len(h.Aliases) > 0 {
		b.WriteString(" (aliases: ")
		b.WriteString(strings.Join(h.Aliases, ", "))
		b.WriteByte(')')
	}
	return b.String()
}

func endpointString(e *config.Endpoint) string {
	if e == nil {
		return ""
	}
	return e.String()
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
