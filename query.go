package dnsresolver

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/miekg/dns"
)

// ednsOptions captures the OPT pseudo-record to attach to a Request, per
// §4.3.
type ednsOptions struct {
	BufferSize uint16
	DO         bool
}

// Request is the wire-bound shape of a single query attempt (§3). Its
// options snapshot is captured once, at build time, so later mutation of
// the caller's QueryOptions cannot alter in-flight behavior.
type Request struct {
	ID        uint16
	Question  Question
	Recursion bool
	EDNS      *ednsOptions

	opts QueryOptions // immutable snapshot
}

// toMsg renders the Request as a *dns.Msg for the default MessageCodec.
func (r *Request) toMsg() *dns.Msg {
	m := new(dns.Msg)
	m.Id = r.ID
	m.RecursionDesired = r.Recursion
	m.Question = []dns.Question{{
		Name:   r.Question.fqdn(),
		Qtype:  r.Question.Type,
		Qclass: r.Question.Class,
	}}

	if r.EDNS != nil {
		opt := new(dns.OPT)
		opt.Hdr.Name = "."
		opt.Hdr.Rrtype = dns.TypeOPT
		opt.SetUDPSize(r.EDNS.BufferSize)
		opt.SetVersion(0)
		opt.SetDo(r.EDNS.DO)
		m.Extra = append(m.Extra, opt)
	}

	return m
}

// buildRequest constructs the initial Request for q under opts (C3,
// §4.3). EDNS is attached iff opts.wantsEDNS().
func buildRequest(q Question, opts QueryOptions) (*Request, error) {
	id, err := randomXID()
	if err != nil {
		return nil, wrapErr(KindConnectionFailure, "", err)
	}

	req := &Request{
		ID:        id,
		Question:  q,
		Recursion: opts.Recursion,
		opts:      opts,
	}

	if opts.wantsEDNS() {
		req.EDNS = &ednsOptions{
			BufferSize: opts.clampedBufferSize(),
			DO:         opts.RequestDNSSECRecords,
		}
	}

	return req, nil
}

// refreshID assigns a new, independent transaction id to req. It must be
// called before every physical retransmission beyond the first (§3's
// RequestHeader invariant, property #5).
func (r *Request) refreshID() error {
	id, err := randomXID()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// randomXID returns a cryptographically uniform 16-bit transaction id
// (§4.3). crypto/rand is used rather than an ecosystem RNG: a CSPRNG
// 16-bit value has no third-party library in this codebase's dependency
// graph that improves on the standard library here.
func randomXID() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
