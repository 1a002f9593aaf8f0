// Package dialer provides the direct outbound dialing used by the redirector.
//
// Dialers implement a small interface (DialContext). The redirector uses one
// to reach the proxy itself and to pass through destinations that are never
// redirected, such as loopback addresses.
package dialer
