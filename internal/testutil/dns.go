package testutil

import (
	"context"
	"net/netip"
	"testing"

	"github.com/miekg/dns"
)

// StartDNSServer serves DNS over TCP on loopback with handler.
func StartDNSServer(t testing.TB, ctx context.Context, handler dns.HandlerFunc) netip.AddrPort {
	t.Helper()

	ln := listen(t, ctx)
	started := make(chan struct{})
	srv := &dns.Server{
		Listener:          ln,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.ActivateAndServe()
	}()
	<-started

	t.Cleanup(func() {
		_ = srv.ShutdownContext(context.Background())
		<-done
	})
	return addrOf(ln)
}

// AnswerA replies to every query with one A record per addr.
func AnswerA(addrs ...netip.Addr) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		for _, a := range addrs {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   a.AsSlice(),
			})
		}
		_ = w.WriteMsg(m)
	}
}
