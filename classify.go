package dnsresolver

import (
	"net/netip"

	"github.com/miekg/dns"
)

// outcome is C4's classification of a successfully parsed response (§4.4).
// XidMismatch and Malformed are raised earlier, during transport/codec
// handling, and never reach classify.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTruncated
	outcomeDNSError
	outcomeEmptyUnanswered
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeTruncated:
		return "truncated"
	case outcomeDNSError:
		return "dns_error"
	case outcomeEmptyUnanswered:
		return "empty_unanswered"
	default:
		return "unknown"
	}
}

// classify implements C4's decision tree. continueOnEmpty gates whether the
// EmptyUnanswered classification is even considered (§4.4: "applies only
// when continue_on_empty_response = true").
func classify(resp *Response, q Question, continueOnEmpty bool) outcome {
	if resp.Truncated {
		return outcomeTruncated
	}
	if resp.Rcode != dns.RcodeSuccess {
		return outcomeDNSError
	}
	if continueOnEmpty && isUnanswered(resp, q) {
		return outcomeEmptyUnanswered
	}
	return outcomeSuccess
}

// isUnanswered implements the "answered" heuristic (§4.4).
func isUnanswered(resp *Response, q Question) bool {
	if len(resp.Answers) == 0 {
		return true
	}

	if q.suppressesEmptyHeuristic() {
		return false
	}

	if q.Type == dns.TypeA || q.Type == dns.TypeAAAA {
		for _, rr := range resp.Answers {
			if rr.Header().Rrtype == dns.TypeCNAME {
				return false
			}
		}
	}

	if q.Type == dns.TypeNS && len(resp.Authorities) > 0 {
		return false
	}

	for _, rr := range resp.Answers {
		if rr.Header().Rrtype == q.Type {
			return false
		}
	}

	return true
}

// applyOPTSideEffect records the server's advertised UDP payload size on
// the matching roster entry (§4.4's OPT side effect), if the response
// carried an OPT record and origin parses as a host:port.
func applyOPTSideEffect(roster *ServerRoster, resp *Response) {
	size := resp.advertisedUDPSize()
	if size == 0 || roster == nil {
		return
	}
	addr, err := netip.ParseAddrPort(resp.Origin)
	if err != nil {
		return
	}
	roster.recordAdvertisedUDPSize(addr, size)
}

// implicitTruncation reports whether a Malformed response on UDP should be
// treated as an implicit truncation (§4.5): the datagram was at or below
// the legacy 512-byte limit, or the parser tried to read past the
// available data.
func implicitTruncation(me *MalformedError, transport string) bool {
	if transport != "udp" {
		return false
	}
	if me.ReadLength <= 512 {
		return true
	}
	return me.overran()
}
