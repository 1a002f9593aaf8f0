package testutil

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
)

// Echo copies everything read from rw back to it until EOF.
func Echo(rw io.ReadWriter) {
	// Hide ReadFrom/WriteTo so a socket is never spliced onto itself.
	_, _ = io.Copy(struct{ io.Writer }{rw}, struct{ io.Reader }{rw})
}

// StartEchoServer echoes on every accepted connection.
func StartEchoServer(t testing.TB, ctx context.Context) netip.AddrPort {
	t.Helper()

	return StartServer(t, ctx, func(c net.Conn) { Echo(c) })
}

func AssertEcho(t testing.TB, rw io.ReadWriter, msg []byte) {
	t.Helper()

	if _, err := rw.Write(msg); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(rw, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, msg) {
		t.Fatalf("expected %q got %q", string(msg), string(buf))
	}
}
