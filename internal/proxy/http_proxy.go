package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/die-net/dsocks/internal/relay"
)

// HTTPProxyServer serves an HTTP forward proxy.
//
// CONNECT requests are tunneled by hijacking the client connection; other
// requests are forwarded with httputil.ReverseProxy. Both dial through
// Config.Dialer.
type HTTPProxyServer struct {
	ctx context.Context
	cfg Config
	log *slog.Logger
	srv *http.Server
	rp  *httputil.ReverseProxy
}

// NewHTTPProxyServer returns a server for cfg. Close stops it.
func NewHTTPProxyServer(ctx context.Context, cfg Config) *HTTPProxyServer {
	if ctx == nil {
		ctx = context.Background()
	}
	h := &HTTPProxyServer{ctx: ctx, cfg: cfg, log: cfg.logger(), rp: newReverseProxy(cfg)}
	h.srv = &http.Server{
		Handler:           http.HandlerFunc(h.handle),
		ReadHeaderTimeout: cfg.NegotiationTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return h.ctx
		},
		ErrorLog: slog.NewLogLogger(h.log.Handler(), slog.LevelWarn),
	}
	return h
}

// Serve serves proxy requests on ln. It returns http.ErrServerClosed after
// Close.
func (s *HTTPProxyServer) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *HTTPProxyServer) Close() error {
	return s.srv.Close()
}

func (s *HTTPProxyServer) handle(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Method, http.MethodConnect) {
		s.handleConnect(w, r)
		return
	}
	s.rp.ServeHTTP(w, r)
}

func (s *HTTPProxyServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, brw, err := hj.Hijack()
	if err != nil {
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()
	_ = clientConn.SetDeadline(time.Time{})

	target := r.Host
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, "443")
	}

	ctx := r.Context()
	serverConn, err := s.cfg.Dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		_, _ = writeError(brw, err, http.StatusBadGateway)
		_ = brw.Flush()
		if s.cfg.Verbose {
			s.log.Warn("http: connect failed", "client", r.RemoteAddr, "target", target, "error", err)
		}
		return
	}
	defer serverConn.Close()

	_, _ = brw.WriteString("HTTP/1.1 200 Connection Established\r\n\r\n")
	if err := brw.Flush(); err != nil {
		return
	}

	// Bytes the client sent after the request are buffered in brw.
	client := net.Conn(clientConn)
	if brw.Reader.Buffered() > 0 {
		client = &bufferedConn{Conn: clientConn, r: brw.Reader}
	}
	if err := relay.CopyBidirectional(ctx, client, serverConn); err != nil && s.cfg.Verbose {
		s.log.Warn("http: tunnel error", "client", r.RemoteAddr, "target", target, "error", err)
	}
}

// bufferedConn reads through r, which holds bytes already read from Conn.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *bufferedConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}

// writeError simulates http.Error() for use on a hijacked connection.
func writeError(brw *bufio.ReadWriter, err error, code int) (int, error) {
	return fmt.Fprintf(brw, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\n\r\n%s\r\n", code, http.StatusText(code), err.Error())
}

func newReverseProxy(cfg Config) *httputil.ReverseProxy {
	rewrite := func(pr *httputil.ProxyRequest) {
		out := pr.Out
		// Allow scheme override through a non-standard header.
		if s := out.Header.Get("X-Proxy-Scheme"); s != "" {
			out.Header.Del("X-Proxy-Scheme")
			out.URL.Scheme = s
		} else if out.URL.Scheme == "" {
			out.URL.Scheme = "http"
		}
		if out.URL.Host == "" {
			out.URL.Host = pr.In.Host
		}
		out.Host = out.URL.Host
	}

	errHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		if cfg.Verbose {
			cfg.logger().Warn("http: forward failed", "client", r.RemoteAddr, "url", r.URL.String(), "error", err)
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
	}

	return &httputil.ReverseProxy{
		Rewrite:       rewrite,
		Transport:     newTransport(cfg),
		FlushInterval: 10 * time.Millisecond,
		ErrorHandler:  errHandler,
		BufferPool:    newBufferPool(32 * 1024),
	}
}

func newTransport(cfg Config) http.RoundTripper {
	return &http.Transport{
		DialContext:         cfg.Dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdleConns,
		IdleConnTimeout:     cfg.HTTPIdleTimeout,
		TLSHandshakeTimeout: cfg.NegotiationTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		},
	}
}
