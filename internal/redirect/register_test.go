package redirect

import (
	"context"
	"net/url"
	"testing"
	"time"

	"golang.org/x/net/proxy"

	"github.com/die-net/dsocks/internal/socks4"
	"github.com/die-net/dsocks/internal/testutil"
)

func TestRegisterProxySchemes(t *testing.T) {
	RegisterProxySchemes()
	RegisterProxySchemes()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tests := []struct {
		name     string
		url      func(p *testutil.MockProxy) string
		address  string
		wantDst  string
		wantUser string
		wantHost string
	}{
		{
			name:     "socks4_with_user",
			url:      func(p *testutil.MockProxy) string { return "socks4://bob@" + p.Addr.String() },
			address:  "192.0.2.30:25",
			wantDst:  "192.0.2.30:25",
			wantUser: "bob",
		},
		{
			name:     "tor_hidden_service",
			url:      func(p *testutil.MockProxy) string { return "tor://" + p.Addr.String() },
			address:  "expyuzz4wqqyqhjn.onion:80",
			wantDst:  "0.0.0.2:80",
			wantHost: "expyuzz4wqqyqhjn.onion",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.StartSOCKS4Proxy(t, ctx, socks4.ReplyGranted, nil)

			u, err := url.Parse(tt.url(p))
			if err != nil {
				t.Fatal(err)
			}
			d, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				t.Fatal(err)
			}

			conn, err := d.Dial("tcp", tt.address)
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEcho(t, conn, []byte("x/net/proxy"))
			_ = conn.Close()

			reqs := p.Requests()
			if len(reqs) != 1 || reqs[0].Dst.String() != tt.wantDst || reqs[0].Hostname != tt.wantHost {
				t.Fatalf("unexpected requests %+v", reqs)
			}
			if tt.wantUser != "" && reqs[0].UserID != tt.wantUser {
				t.Fatalf("user %q want %q", reqs[0].UserID, tt.wantUser)
			}
			if _, ok := d.(proxy.ContextDialer); !ok {
				t.Fatal("dialer does not implement proxy.ContextDialer")
			}
		})
	}
}

func TestRegisterProxySchemesInvalid(t *testing.T) {
	RegisterProxySchemes()

	for _, raw := range []string{"socks4://localhost:1080", "tor://10.0.0.1:0", "tor://[::1]:9050"} {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := proxy.FromURL(u, proxy.Direct); err == nil {
			t.Errorf("%s: expected error", raw)
		}
	}
}
