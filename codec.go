package dnsresolver

import (
	"github.com/miekg/dns"
)

// MalformedError describes a response that failed to parse, carrying
// enough of the raw-read shape (§4.4) for the engine to decide whether a
// too-short UDP datagram should be treated as implicit truncation.
type MalformedError struct {
	ReadLength int // bytes actually read off the wire
	Index      int // byte offset the parser was at when it gave up, -1 if unknown
	DataLength int // bytes the parser expected, -1 if unknown
	Err        error
}

func (e *MalformedError) Error() string {
	return "dnsresolver: malformed response: " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error { return e.Err }

// overran reports whether the parser consumed (or tried to consume) more
// bytes than were actually available - one of the two conditions (along
// with "UDP datagram <= 512 bytes") under which a Malformed outcome is
// reinterpreted as an implicit truncation (§4.5).
func (e *MalformedError) overran() bool {
	return e.DataLength >= 0 && e.DataLength > e.ReadLength
}

// MessageCodec encodes Requests to wire bytes and decodes wire bytes into
// Responses. It is an external collaborator (§1); the default
// implementation wraps github.com/miekg/dns's Pack/Unpack.
type MessageCodec interface {
	Encode(req *Request) ([]byte, error)
	Decode(data []byte, origin string) (*Response, error)
}

// dnsCodec is the default MessageCodec, backed by miekg/dns.
type dnsCodec struct{}

// Encode implements MessageCodec.
func (dnsCodec) Encode(req *Request) ([]byte, error) {
	return req.toMsg().Pack()
}

// Decode implements MessageCodec.
func (dnsCodec) Decode(data []byte, origin string) (*Response, error) {
	if len(data) < 12 {
		return nil, &MalformedError{
			ReadLength: len(data),
			Index:      len(data),
			DataLength: 12,
			Err:        dns.ErrShortRead,
		}
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return nil, &MalformedError{
			ReadLength: len(data),
			Index:      -1,
			DataLength: -1,
			Err:        err,
		}
	}

	return newResponse(msg, origin, len(data)), nil
}
