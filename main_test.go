package main

import (
	"bytes"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/die-net/dsocks/internal/config"
	"github.com/die-net/dsocks/internal/dnsmsg"
	"github.com/die-net/dsocks/internal/testutil"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:30:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 30 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "1:2", wantErr: true},
		{in: "0:1:1", wantErr: true},
		{in: "1:x:1", wantErr: true},
		{in: "1:1:-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTCPKeepAlive(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestFormatHost(t *testing.T) {
	h := &dnsmsg.Host{
		Name:    "example.net",
		Aliases: []string{"www.example.com", "cdn.example.com"},
		Addrs:   []netip.Addr{netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("192.0.2.2")},
	}
	want := "www.example.com -> 192.0.2.1, 192.0.2.2 (aliases: www.example.com, cdn.example.com)"
	if got := formatHost("www.example.com", h); got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}

	h = &dnsmsg.Host{Name: "a", Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}
	if got := formatHost("a", h); got != "a -> 10.0.0.1" {
		t.Fatalf("got %q", got)
	}
}

// clearEnv unsets the DSOCKS variables for the rest of the test. FromEnv
// treats a set but empty variable as set.
func clearEnv(t *testing.T) {
	for _, k := range []string{config.EnvVersion, config.EnvTor, config.EnvProxy, config.EnvNameserver} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestRunResolve(t *testing.T) {
	ns := testutil.StartDNSServer(t, t.Context(), testutil.AnswerA(netip.MustParseAddr("192.0.2.80")))

	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{name: "literal", args: []string{"10.1.2.3"}, want: "10.1.2.3 -> 10.1.2.3\n"},
		{name: "tor_flag", args: []string{"--protocol", "tor", "expyuzz4wqqyqhjn.onion"}, want: "expyuzz4wqqyqhjn.onion -> 0.0.0.2\n"},
		{name: "tor_env", env: map[string]string{config.EnvVersion: "tor"}, args: []string{"expyuzz4wqqyqhjn.onion"}, want: "expyuzz4wqqyqhjn.onion -> 0.0.0.2\n"},
		{name: "nameserver", args: []string{"--nameserver", ns.String(), "www.example.com"}, want: "www.example.com -> 192.0.2.80\n"},
		{name: "nameserver_env", env: map[string]string{config.EnvNameserver: ns.String()}, args: []string{"www.example.com"}, want: "www.example.com -> 192.0.2.80\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var out bytes.Buffer
			if err := run(tt.args, &out); err != nil {
				t.Fatal(err)
			}
			if out.String() != tt.want {
				t.Fatalf("got %q want %q", out.String(), tt.want)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "nothing_to_do"},
		{name: "bad_version_env", env: map[string]string{config.EnvVersion: "6"}, args: []string{"10.0.0.1"}},
		{name: "bad_protocol_flag", args: []string{"--protocol", "http", "10.0.0.1"}},
		{name: "bad_proxy", args: []string{"--proxy", "::1", "10.0.0.1"}},
		{name: "bad_nameserver", args: []string{"--nameserver", "10.0.0.1:0", "10.0.0.1"}},
		{name: "bad_keepalive", args: []string{"--tcp-keepalive", "sometimes", "10.0.0.1"}},
		{name: "bad_http_listen", args: []string{"--http-listen", "127.0.0.1:99999"}},
		{name: "bad_socks5_listen", args: []string{"--socks5-listen", "127.0.0.1:99999"}},
		{name: "unknown_flag", args: []string{"--upstream", "direct://"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if err := run(tt.args, &bytes.Buffer{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
