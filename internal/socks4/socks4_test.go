package socks4

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/dsocks/internal/proxyerr"
)

func TestNegotiateWireBytes(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	want := []byte{0x04, 0x01, 0x00, 0x50, 0x5D, 0xB8, 0xD8, 0x22, 0x61, 0x6C, 0x69, 0x63, 0x65, 0x00}

	g := errgroup.Group{}
	g.Go(func() error {
		got := make([]byte, len(want))
		if _, err := io.ReadFull(serverConn, got); err != nil {
			return err
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("request % X want % X", got, want)
		}
		_, err := serverConn.Write([]byte{0x00, 0x5A, 0, 0, 0, 0, 0, 0})
		return err
	})

	if err := Negotiate(clientConn, netip.MustParseAddrPort("93.184.216.34:80"), "alice", ""); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestNegotiateReplies(t *testing.T) {
	tests := []struct {
		name      string
		reply     []byte
		wantErr   bool
		wantCode  byte
		wantCause error
	}{
		{name: "granted", reply: []byte{0, ReplyGranted, 0, 0, 0, 0, 0, 0}},
		{name: "rejected", reply: []byte{0, ReplyRejected, 0, 0, 0, 0, 0, 0}, wantErr: true, wantCode: ReplyRejected},
		{name: "no_identd", reply: []byte{0, ReplyNoIdentd, 0, 0, 0, 0, 0, 0}, wantErr: true, wantCode: ReplyNoIdentd},
		{name: "bad_version", reply: []byte{4, ReplyGranted, 0, 0, 0, 0, 0, 0}, wantErr: true, wantCause: errReplyVersion},
		{name: "short_reply", reply: []byte{0, ReplyGranted, 0}, wantErr: true, wantCause: io.ErrUnexpectedEOF},
		{name: "no_reply", wantErr: true, wantCause: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				defer serverConn.Close()
				if _, err := ReadRequest(serverConn); err != nil {
					return err
				}
				_, err := serverConn.Write(tt.reply)
				return err
			})

			err := Negotiate(clientConn, netip.MustParseAddrPort("10.0.0.1:443"), "bob", "")
			if gerr := g.Wait(); gerr != nil {
				t.Fatal(gerr)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if !errors.Is(err, proxyerr.ProtocolViolation) {
				t.Fatalf("got %v want protocol violation", err)
			}
			if tt.wantCode != 0 {
				var re ReplyError
				if !errors.As(err, &re) || byte(re) != tt.wantCode {
					t.Fatalf("got %v want reply code %d", err, tt.wantCode)
				}
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Fatalf("got %v want cause %v", err, tt.wantCause)
			}
		})
	}
}

func TestNegotiateHiddenService(t *testing.T) {
	tests := []struct {
		name     string
		dst      string
		hostname string
		want     string
	}{
		{name: "sentinel_carries_hostname", dst: "0.0.0.2:80", hostname: "expyuzz4wqqyqhjn.onion", want: "expyuzz4wqqyqhjn.onion"},
		{name: "other_address_omits_hostname", dst: "192.0.2.7:80", hostname: "ignored.onion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			var req *Request
			g := errgroup.Group{}
			g.Go(func() error {
				var err error
				if req, err = ReadRequest(serverConn); err != nil {
					return err
				}
				return WriteReply(serverConn, ReplyGranted, netip.AddrPort{})
			})

			if err := Negotiate(clientConn, netip.MustParseAddrPort(tt.dst), "tor", tt.hostname); err != nil {
				t.Fatal(err)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
			if req.Command != CmdConnect || req.UserID != "tor" || req.Dst.String() != tt.dst {
				t.Fatalf("unexpected request %+v", req)
			}
			if req.Hostname != tt.want {
				t.Fatalf("hostname %q want %q", req.Hostname, tt.want)
			}
		})
	}
}

func TestNegotiateTimeout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		_, _ = ReadRequest(serverConn)
	}()

	_ = clientConn.SetDeadline(time.Now().Add(50 * time.Millisecond))
	err := Negotiate(clientConn, netip.MustParseAddrPort("10.0.0.1:22"), "", "")
	if !errors.Is(err, proxyerr.Timeout) {
		t.Fatalf("got %v want timeout", err)
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "ipv6", req: Request{Command: CmdConnect, Dst: netip.MustParseAddrPort("[2001:db8::1]:80")}},
		{name: "long_hostname", req: Request{Command: CmdConnect, Dst: netip.AddrPortFrom(HiddenServiceAddr, 80), Hostname: string(bytes.Repeat([]byte("x"), MaxHostnameLen+1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.req.AppendBinary(nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNegotiateInvalidRequest(t *testing.T) {
	var buf bytes.Buffer
	err := Negotiate(&buf, netip.MustParseAddrPort("[2001:db8::1]:80"), "alice", "")
	if !errors.Is(err, proxyerr.ProtocolViolation) {
		t.Fatalf("got %v want protocol violation", err)
	}
	if got := proxyerr.Errno(err); got != syscall.ECONNABORTED {
		t.Fatalf("errno %v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote % X", buf.Bytes())
	}
}

func TestResolveRequestEncoding(t *testing.T) {
	req := Request{Command: CmdResolve, Dst: netip.MustParseAddrPort("0.0.0.1:0"), Hostname: "example.com"}
	b, err := req.AppendBinary(nil)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0x04, 0xF0, 0, 0, 0, 0, 0, 1, 0}, "example.com\x00"...)
	if !bytes.Equal(b, want) {
		t.Fatalf("got % X want % X", b, want)
	}

	got, err := ReadRequest(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	if got.Command != CmdResolve || got.Hostname != "example.com" || got.UserID != "" {
		t.Fatalf("unexpected request %+v", got)
	}
}
