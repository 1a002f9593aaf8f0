package dnsmsg

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxNameOctets = 255
	// A legal name has at most 127 labels, so more pointer hops than that
	// means the pointers form a loop.
	maxPointerHops = 127
)

var errBadName = errors.New("invalid domain name")

// readName expands the name starting at off in msg. It returns the dotted
// presentation form (without trailing dot, "." for the root) and the offset
// just past the name as it appears at off.
func readName(msg []byte, off int) (string, int, error) {
	var (
		b     strings.Builder
		next  = -1
		hops  int
		octet = 1 // terminating root label
	)

	for {
		if off < 0 || off >= len(msg) {
			return "", 0, errTruncated
		}
		c := int(msg[off])
		off++

		switch c & 0xC0 {
		case 0x00:
			if c == 0 {
				if next < 0 {
					next = off
				}
				if b.Len() == 0 {
					return ".", next, nil
				}
				return b.String(), next, nil
			}
			if len(msg)-off < c {
				return "", 0, errTruncated
			}
			octet += c + 1
			if octet > maxNameOctets {
				return "", 0, fmt.Errorf("%w: longer than %d octets", errBadName, maxNameOctets)
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			writeLabel(&b, msg[off:off+c])
			off += c
		case 0xC0:
			if off >= len(msg) {
				return "", 0, errTruncated
			}
			ptr := (c&0x3F)<<8 | int(msg[off])
			off++
			if next < 0 {
				next = off
			}
			hops++
			if hops > maxPointerHops {
				return "", 0, fmt.Errorf("%w: compression loop", errBadName)
			}
			off = ptr
		default:
			return "", 0, fmt.Errorf("%w: reserved label type %#x", errBadName, c&0xC0)
		}
	}
}

// writeLabel writes label in presentation form, escaping dots, backslashes
// and unprintable octets.
func writeLabel(b *strings.Builder, label []byte) {
	for _, ch := range label {
		switch {
		case ch == '.' || ch == '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case ch <= ' ' || ch >= 0x7f:
			fmt.Fprintf(b, "\\%03d", ch)
		default:
			b.WriteByte(ch)
		}
	}
}
