// Package redirect sends outbound IPv4 TCP connections and name lookups
// through a SOCKS4, SOCKS5 or Tor proxy.
//
// A Session holds everything one redirector needs: the protocol variant, the
// proxy and nameserver endpoints, the pending hidden-service hostname and the
// Direct capabilities used to reach the network without redirection. Two
// entry points share its rules:
//
//   - ConnectFD redirects a connect(2) on a raw socket. It is meant to sit
//     behind a connect interception layer and reports failures that
//     proxyerr.Errno turns into the errno connect(2) would set.
//   - DialContext is the Go-native equivalent, used by the front ends and by
//     golang.org/x/net/proxy through RegisterProxySchemes.
//
// Only IPv4 stream connections to non-loopback destinations are redirected;
// everything else goes to the Direct capability unchanged.
package redirect
