// Package dnsproxy answers DNS queries from local programs by resolving them
// through a redirect.Session, so lookups take the same path as connections.
package dnsproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/dsocks/internal/dnsmsg"
	"github.com/die-net/dsocks/internal/tor"
)

// Resolver is the resolution policy queries are answered with.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*dnsmsg.Host, error)
}

// Server is a dns.Handler. Answers are never cached, so records carry a zero
// TTL.
type Server struct {
	ctx      context.Context
	Resolver Resolver
	Log      *slog.Logger
	Verbose  bool
}

func NewServer(ctx context.Context, r Resolver, log *slog.Logger, verbose bool) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{ctx: ctx, Resolver: r, Log: log, Verbose: verbose}
}

func (s *Server) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	m := s.answer(req)
	if err := w.WriteMsg(m); err != nil && s.Verbose {
		s.Log.Warn("dns: write reply", "client", w.RemoteAddr().String(), "error", err)
	}
}

func (s *Server) answer(req *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(req)
	m.RecursionAvailable = true

	if req.Opcode != dns.OpcodeQuery {
		m.Rcode = dns.RcodeNotImplemented
		return m
	}
	if len(req.Question) != 1 {
		m.Rcode = dns.RcodeFormatError
		return m
	}

	q := req.Question[0]
	name := strings.TrimSuffix(q.Name, ".")
	switch {
	case q.Qclass != dns.ClassINET:
		m.Rcode = dns.RcodeServerFailure
		return m
	case q.Qtype != dns.TypeA && q.Qtype != dns.TypeANY:
		return m
	case tor.IsHiddenService(name):
		// The 0.0.0.2 sentinel is only meaningful inside a session.
		m.Rcode = dns.RcodeServerFailure
		return m
	}

	h, err := s.Resolver.Resolve(s.ctx, name)
	if err != nil {
		if s.Verbose {
			s.Log.Warn("dns: resolve failed", "name", name, "error", err)
		}
		m.Rcode = dns.RcodeServerFailure
		return m
	}

	for _, a := range h.Addrs {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET},
			A:   a.AsSlice(),
		})
	}
	if s.Verbose {
		s.Log.Info("dns: resolved", "name", name, "addrs", h.Addrs)
	}
	return m
}

// Serve answers queries on pc and ln until ctx is done or either fails.
// Either may be nil.
func (s *Server) Serve(ctx context.Context, pc net.PacketConn, ln net.Listener) error {
	if pc == nil && ln == nil {
		return errors.New("dns: nothing to serve")
	}

	g, ctx := errgroup.WithContext(ctx)
	context.AfterFunc(ctx, func() {
		if pc != nil {
			_ = pc.Close()
		}
		if ln != nil {
			_ = ln.Close()
		}
	})

	serve := func(proto string, srv *dns.Server) {
		g.Go(func() error {
			if err := srv.ActivateAndServe(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("dns %s serve: %w", proto, err)
			}
			return nil
		})
	}
	if pc != nil {
		serve("udp", &dns.Server{PacketConn: pc, Handler: s})
	}
	if ln != nil {
		serve("tcp", &dns.Server{Listener: ln, Handler: s})
	}
	return g.Wait()
}

// Listen opens the UDP and TCP sockets for addr. TCP is bound to the port UDP
// got, so port 0 yields one port for both.
func Listen(ctx context.Context, addr string) (net.PacketConn, net.Listener, error) {
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	ln, err := lc.Listen(ctx, "tcp", pc.LocalAddr().String())
	if err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return pc, ln, nil
}
