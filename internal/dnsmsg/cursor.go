package dnsmsg

import (
	"encoding/binary"
	"errors"
)

var errTruncated = errors.New("message truncated")

// cursor reads big-endian fields from an immutable message. A failed read
// leaves the offset unchanged.
type cursor struct {
	msg []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.msg) - c.off
}

func (c *cursor) need(n int) error {
	if n < 0 || c.remaining() < n {
		return errTruncated
	}
	return nil
}

func (c *cursor) uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.msg[c.off:])
	c.off += 2
	return v, nil
}

func (c *cursor) uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.msg[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// name expands the (possibly compressed) domain name at the cursor and moves
// past its in-place encoding.
func (c *cursor) name() (string, error) {
	s, next, err := readName(c.msg, c.off)
	if err != nil {
		return "", err
	}
	c.off = next
	return s, nil
}
