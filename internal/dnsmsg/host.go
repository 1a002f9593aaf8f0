package dnsmsg

import (
	"net/netip"

	"github.com/die-net/dsocks/internal/proxyerr"
)

const (
	// MaxAliases caps Host.Aliases. Further aliases are dropped.
	MaxAliases = 35
	// MaxAddrs caps Host.Addrs. Further addresses are dropped.
	MaxAddrs = 35
)

// Host is a resolved host: its canonical name, the aliases that led to it and
// its IPv4 addresses, all in answer order.
type Host struct {
	Name    string
	Aliases []string
	Addrs   []netip.Addr

	// Saturated is set when an alias or address was dropped because its list
	// was full. The entries already accepted are unaffected.
	Saturated bool
}

// Overflow returns a ListOverflow error if h is saturated, nil otherwise. A
// saturated Host is still a successful lookup.
func (h *Host) Overflow() error {
	if h.Saturated {
		return proxyerr.New(proxyerr.ListOverflow, "dns answer", nil)
	}
	return nil
}

// Addr returns the first address, or the zero Addr when there is none.
func (h *Host) Addr() netip.Addr {
	if len(h.Addrs) == 0 {
		return netip.Addr{}
	}
	return h.Addrs[0]
}

// AddAlias appends name unless Aliases is full, in which case it marks h
// saturated.
func (h *Host) AddAlias(name string) {
	if len(h.Aliases) >= MaxAliases {
		h.Saturated = true
		return
	}
	h.Aliases = append(h.Aliases, name)
}

// AddAddr appends a and reports whether there was room.
func (h *Host) AddAddr(a netip.Addr) bool {
	if len(h.Addrs) >= MaxAddrs {
		h.Saturated = true
		return false
	}
	h.Addrs = append(h.Addrs, a)
	return true
}
