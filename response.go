package dnsresolver

import (
	"github.com/miekg/dns"
)

// Response is the parsed form of a name server's answer (§3). It wraps the
// underlying *dns.Msg rather than re-modeling every record type, the same
// choice the teacher library makes for its RecordSet.Raw field.
type Response struct {
	ID        uint16
	Rcode     int
	Truncated bool

	Questions   []Question
	Answers     []dns.RR
	Authorities []dns.RR
	Additionals []dns.RR

	// Size is the number of bytes the response occupied on the wire.
	Size int
	// Origin is the server that produced this response.
	Origin string

	// opt is the EDNS OPT pseudo-record, if the response carried one.
	opt *dns.OPT
}

func newResponse(msg *dns.Msg, origin string, size int) *Response {
	r := &Response{
		ID:          msg.Id,
		Rcode:       msg.Rcode,
		Truncated:   msg.Truncated,
		Answers:     msg.Answer,
		Authorities: msg.Ns,
		Size:        size,
		Origin:      origin,
	}

	for _, q := range msg.Question {
		r.Questions = append(r.Questions, Question{Name: q.Name, Type: q.Qtype, Class: q.Qclass})
	}

	for _, rr := range msg.Extra {
		if opt, ok := rr.(*dns.OPT); ok {
			r.opt = opt
			continue
		}
		r.Additionals = append(r.Additionals, rr)
	}

	return r
}

// records returns the union of answers, authorities and additionals, used
// for the cache's minimum-TTL computation (§4.1).
func (r *Response) records() []dns.RR {
	all := make([]dns.RR, 0, len(r.Answers)+len(r.Authorities)+len(r.Additionals))
	all = append(all, r.Answers...)
	all = append(all, r.Authorities...)
	all = append(all, r.Additionals...)
	return all
}

// advertisedUDPSize returns the OPT record's requestor UDP payload size, 0
// if the response carried no OPT record.
func (r *Response) advertisedUDPSize() uint32 {
	if r.opt == nil {
		return 0
	}
	return uint32(r.opt.UDPSize())
}
