package tor

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/dsocks/internal/proxyerr"
	"github.com/die-net/dsocks/internal/socks4"
)

func TestIsHiddenService(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "expyuzz4wqqyqhjn.onion", want: true},
		{name: "a.b.onion", want: true},
		{name: ".onion", want: true},
		{name: "onion"},
		{name: "example.com"},
		{name: "example.onion.com"},
		{name: "example.onion."},
		{name: "example.ONION"},
		{name: ""},
	}

	for _, tt := range tests {
		if got := IsHiddenService(tt.name); got != tt.want {
			t.Errorf("IsHiddenService(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		code    byte
		addr    string
		wantErr bool
	}{
		{name: "granted", code: socks4.ReplyGranted, addr: "93.184.216.34"},
		{name: "rejected", code: socks4.ReplyRejected, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				req, err := socks4.ReadRequest(serverConn)
				if err != nil {
					return err
				}
				if req.Command != socks4.CmdResolve || req.Dst != resolveAddr || req.Hostname != "example.com" {
					return fmt.Errorf("unexpected request %+v", req)
				}
				var dst netip.AddrPort
				if tt.addr != "" {
					dst = netip.AddrPortFrom(netip.MustParseAddr(tt.addr), 0)
				}
				return socks4.WriteReply(serverConn, tt.code, dst)
			})

			got, err := Resolve(clientConn, "example.com")
			if gerr := g.Wait(); gerr != nil {
				t.Fatal(gerr)
			}
			if tt.wantErr {
				if !errors.Is(err, proxyerr.ProtocolViolation) {
					t.Fatalf("got %v want protocol violation", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.addr {
				t.Fatalf("got %s want %s", got, tt.addr)
			}
		})
	}
}

func TestResolveShortReply(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		defer serverConn.Close()
		if _, err := socks4.ReadRequest(serverConn); err != nil {
			return
		}
		_, _ = serverConn.Write([]byte{0, socks4.ReplyGranted, 0, 0})
	}()

	if _, err := Resolve(clientConn, "example.com"); !errors.Is(err, proxyerr.ProtocolViolation) {
		t.Fatalf("got %v", err)
	}
}

func TestResolveNameTooLong(t *testing.T) {
	var buf bytes.Buffer
	_, err := Resolve(&buf, strings.Repeat("a", socks4.MaxHostnameLen+1))
	if !errors.Is(err, proxyerr.ProtocolViolation) {
		t.Fatalf("got %v want protocol violation", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %d bytes", buf.Len())
	}
}
