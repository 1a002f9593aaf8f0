// Package tproxy accepts transparently redirected TCP connections and dials
// their original destination through a redirect.Session.
//
// On Linux the listener sets IP_TRANSPARENT for TPROXY rules, and the
// original destination comes from SO_ORIGINAL_DST. On FreeBSD (IP_BINDANY) and OpenBSD
// (SO_BINDANY) the firewall preserves the destination as the local address.
// Elsewhere the listener is stubbed out and returns an error.
//
// A connection whose destination is the listener itself is refused rather
// than dialed, since dialing it would be accepted again.
package tproxy
