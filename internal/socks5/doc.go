// Package socks5 provides the SOCKS5 handshake used by the redirector.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 and
// narrows them to what the redirector needs: a no-auth method offer followed
// by a CONNECT to an IPv4 destination. Reply codes are translated into
// proxyerr kinds so callers can map them to errno values.
//
// The server-side helpers exist so tests can stand in for a proxy; this is
// not a SOCKS5 server.
package socks5
