package dnsmsg

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/die-net/dsocks/internal/proxyerr"
)

const (
	headerLen        = 12
	questionFixedLen = 4 // type, class
	ipv4Len          = 4
)

var errNoAnswer = errors.New("no matching answer")

// Decode parses the answer msg to a query for qname of type qtype (A or PTR).
//
// A question count other than one, or an invalid question name, fails with
// proxyerr.MalformedMessage and never returns partial data. Truncation, or an
// answer section without a single acceptable record, fails with
// proxyerr.AnswerIncomplete. A problem inside the answer section stops
// parsing but keeps the answers accepted before it.
func Decode(msg []byte, qname string, qtype uint16) (*Host, error) {
	if qtype != dns.TypeA && qtype != dns.TypePTR {
		return nil, fmt.Errorf("dns: unsupported query type %s", dns.Type(qtype))
	}

	d := decoder{c: cursor{msg: msg}, qtype: qtype, chase: qname}

	if err := d.c.need(headerLen); err != nil {
		return nil, proxyerr.New(proxyerr.AnswerIncomplete, "dns header", err)
	}
	d.c.off = 4
	qdcount, _ := d.c.uint16()
	ancount, _ := d.c.uint16()
	d.c.off = headerLen
	if qdcount != 1 {
		return nil, proxyerr.New(proxyerr.MalformedMessage, "dns header", fmt.Errorf("question count %d", qdcount))
	}

	name, err := d.c.name()
	if err != nil {
		if errors.Is(err, errTruncated) {
			return nil, proxyerr.New(proxyerr.AnswerIncomplete, "dns question", err)
		}
		return nil, proxyerr.New(proxyerr.MalformedMessage, "dns question", err)
	}
	if err := d.c.skip(questionFixedLen); err != nil {
		return nil, proxyerr.New(proxyerr.AnswerIncomplete, "dns question", err)
	}
	if qtype == dns.TypeA {
		// The expanded question name is absolute; qname may be abbreviated.
		d.host.Name = name
		qname = name
	}

	cause := errNoAnswer
	for i := 0; i < int(ancount) && d.c.remaining() > 0; i++ {
		if err := d.record(); err != nil {
			cause = err
			break
		}
	}

	if d.answers == 0 {
		return nil, proxyerr.New(proxyerr.AnswerIncomplete, "dns answer", cause)
	}
	if d.host.Name == "" {
		d.host.Name = qname
	}
	return &d.host, nil
}

type decoder struct {
	c     cursor
	qtype uint16
	// chase is the name a PTR record's owner must match; CNAMEs move it.
	// A records match against host.Name instead.
	chase   string
	host    Host
	answers int
}

// record consumes one resource record. Records that do not answer the query
// are skipped without error.
func (d *decoder) record() error {
	owner, err := d.c.name()
	if err != nil {
		return err
	}
	rrtype, err := d.c.uint16()
	if err != nil {
		return err
	}
	class, err := d.c.uint16()
	if err != nil {
		return err
	}
	if _, err := d.c.uint32(); err != nil { // ttl
		return err
	}
	rdlen, err := d.c.uint16()
	if err != nil {
		return err
	}
	start := d.c.off
	if err := d.c.skip(int(rdlen)); err != nil {
		return err
	}
	end := d.c.off

	switch {
	case rrtype == dns.TypeSIG, class != dns.ClassINET:
		return nil
	case rrtype == dns.TypeCNAME && d.qtype == dns.TypeA:
		target, err := d.rdataName(start, end)
		if err != nil {
			return err
		}
		d.host.AddAlias(owner)
		d.host.Name = target
		return nil
	case rrtype == dns.TypeCNAME && d.qtype == dns.TypePTR:
		target, err := d.rdataName(start, end)
		if err != nil {
			return err
		}
		d.chase = target
		return nil
	case rrtype != d.qtype:
		return nil
	}

	switch rrtype {
	case dns.TypePTR:
		if !strings.EqualFold(d.chase, owner) {
			return nil
		}
		target, err := d.rdataName(start, end)
		if err != nil {
			return err
		}
		if d.answers == 0 {
			d.host.Name = target
		} else {
			d.host.AddAlias(target)
		}
	case dns.TypeA:
		if !strings.EqualFold(d.host.Name, owner) || rdlen != ipv4Len {
			return nil
		}
		if !d.host.AddAddr(netip.AddrFrom4([ipv4Len]byte(d.c.msg[start:end]))) {
			return nil
		}
		if d.answers == 0 {
			d.host.Name = owner
		}
	}
	d.answers++
	return nil
}

// rdataName expands a name stored in the rdata spanning [start, end).
func (d *decoder) rdataName(start, end int) (string, error) {
	name, next, err := readName(d.c.msg, start)
	if err != nil {
		return "", err
	}
	if next > end {
		return "", fmt.Errorf("%w: name overruns record data", errTruncated)
	}
	return name, nil
}
