// Package tor implements the parts of Tor's SOCKS4 dialect that plain SOCKS4
// lacks: recognizing hidden-service names and the RESOLVE request.
package tor

import (
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/die-net/dsocks/internal/proxyerr"
	"github.com/die-net/dsocks/internal/socks4"
)

// HiddenServiceSuffix marks names that only the Tor network can reach.
const HiddenServiceSuffix = ".onion"

// resolveAddr is the placeholder destination of a RESOLVE request.
var resolveAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{0, 0, 0, 1}), 0)

// IsHiddenService reports whether the last label of name is "onion". The
// comparison is case-sensitive and a trailing dot does not match.
func IsHiddenService(name string) bool {
	return strings.HasSuffix(name, HiddenServiceSuffix)
}

// Resolve asks the Tor proxy on rw to resolve name and returns the IPv4
// address it reports. The caller owns rw and any deadline on it.
func Resolve(rw io.ReadWriter, name string) (netip.Addr, error) {
	req := socks4.Request{Command: socks4.CmdResolve, Dst: resolveAddr, Hostname: name}
	b, err := req.AppendBinary(nil)
	if err != nil {
		return netip.Addr{}, proxyerr.New(proxyerr.ProtocolViolation, "tor resolve", err)
	}
	if _, err := rw.Write(b); err != nil {
		return netip.Addr{}, proxyerr.FromIO("tor resolve", err)
	}

	rep, err := socks4.ReadReply(rw)
	if err != nil {
		return netip.Addr{}, proxyerr.FromIO("tor resolve", err)
	}
	if rep.Code != socks4.ReplyGranted {
		return netip.Addr{}, proxyerr.New(proxyerr.ProtocolViolation, "tor resolve", fmt.Errorf("%s: %w", name, socks4.ReplyError(rep.Code)))
	}
	return rep.Dst.Addr(), nil
}
