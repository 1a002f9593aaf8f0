// Package proxy implements local proxy listeners whose connections are dialed
// through a redirect.Session.
//
// It contains a SOCKS5 server (no-auth CONNECT) and an HTTP forward proxy
// (CONNECT and non-CONNECT). Hostnames requested by clients are resolved by
// the session's resolution policy, so with Tor a hidden-service name reaches
// the proxy intact.
package proxy
