package dnsresolver

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// Kind identifies the taxonomy of failures the resolver engine can surface,
// per the error-dispatch table.
type Kind int

const (
	// KindEmptyServers means the server roster was empty when the query
	// was dispatched; no I/O was attempted.
	KindEmptyServers Kind = iota
	// KindTimeout means a transport call did not complete before its
	// per-attempt deadline.
	KindTimeout
	// KindTransientIO means a transport call failed with a retryable I/O
	// error other than a timeout.
	KindTransientIO
	// KindCancelled means the caller's context was cancelled.
	KindCancelled
	// KindXidMismatch means a response's transaction id did not match the
	// request that produced it.
	KindXidMismatch
	// KindTruncated means the UDP response had the TC bit set and no TCP
	// fallback has been attempted yet.
	KindTruncated
	// KindTruncatedFallbackDisabled means a truncated response was
	// received and use_tcp_fallback is false.
	KindTruncatedFallbackDisabled
	// KindUnexpectedTruncatedOverTCP means even the TCP retry came back
	// truncated.
	KindUnexpectedTruncatedOverTCP
	// KindMalformed means the response bytes could not be parsed as a DNS
	// message.
	KindMalformed
	// KindDNSError means the response parsed successfully but its RCODE
	// was not NOERROR.
	KindDNSError
	// KindConnectionFailure is the catch-all for unexpected transport
	// failures exhausted across the last server.
	KindConnectionFailure
	// KindInvalidArgument means the caller supplied a programmer error
	// (bad record type, nil options, ...); never retried.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindEmptyServers:
		return "empty_servers"
	case KindTimeout:
		return "timeout"
	case KindTransientIO:
		return "transient_io"
	case KindCancelled:
		return "cancelled"
	case KindXidMismatch:
		return "xid_mismatch"
	case KindTruncated:
		return "truncated"
	case KindTruncatedFallbackDisabled:
		return "truncated_fallback_disabled"
	case KindUnexpectedTruncatedOverTCP:
		return "unexpected_truncated_over_tcp"
	case KindMalformed:
		return "malformed"
	case KindDNSError:
		return "dns_error"
	case KindConnectionFailure:
		return "connection_failure"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// ResolveError is returned by Resolver.Query and carries the Kind that
// triggered it, per §7's error taxonomy. Callers test for a specific
// failure using errors.Is against one of the Err* sentinels below, or by
// inspecting Kind directly via errors.As.
type ResolveError struct {
	Kind   Kind
	Rcode  int // valid when Kind == KindDNSError
	Server string
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Kind == KindDNSError {
		rc := dns.RcodeToString[e.Rcode]
		if rc == "" {
			rc = fmt.Sprintf("RCODE%d", e.Rcode)
		}
		if e.Server != "" {
			return fmt.Sprintf("dns: %s: %s", e.Server, rc)
		}
		return "dns: " + rc
	}

	msg := e.Kind.String()
	if e.Server != "" {
		msg = e.Server + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "dns: " + msg
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Is supports errors.Is(err, ErrTimeout) and friends by comparing Kind, so
// wrapped ResolveErrors still match the sentinel for their Kind.
func (e *ResolveError) Is(target error) bool {
	sentinel, ok := target.(*ResolveError)
	if !ok {
		return false
	}
	return sentinel.Kind == e.Kind && sentinel.Err == nil
}

// Sentinels for errors.Is comparisons against ResolveError.Kind.
var (
	ErrEmptyServers               = &ResolveError{Kind: KindEmptyServers}
	ErrTimeout                    = &ResolveError{Kind: KindTimeout}
	ErrTransientIO                = &ResolveError{Kind: KindTransientIO}
	ErrCancelled                  = &ResolveError{Kind: KindCancelled}
	ErrXidMismatch                = &ResolveError{Kind: KindXidMismatch}
	ErrTruncated                  = &ResolveError{Kind: KindTruncated}
	ErrTruncatedFallbackDisabled  = &ResolveError{Kind: KindTruncatedFallbackDisabled}
	ErrUnexpectedTruncatedOverTCP = &ResolveError{Kind: KindUnexpectedTruncatedOverTCP}
	ErrMalformed                  = &ResolveError{Kind: KindMalformed}
	ErrDNSError                   = &ResolveError{Kind: KindDNSError}
	ErrConnectionFailure          = &ResolveError{Kind: KindConnectionFailure}
	ErrInvalidArgument            = &ResolveError{Kind: KindInvalidArgument}
)

func wrapErr(kind Kind, server string, err error) *ResolveError {
	return &ResolveError{Kind: kind, Server: server, Err: err}
}

func dnsError(server string, rcode int) *ResolveError {
	return &ResolveError{Kind: KindDNSError, Server: server, Rcode: rcode}
}

// IsNXDomain reports whether err represents an authoritative NXDOMAIN
// response, the most commonly tested-for DNS error in practice.
func IsNXDomain(err error) bool {
	var re *ResolveError
	return errors.As(err, &re) && re.Kind == KindDNSError && re.Rcode == dns.RcodeNameError
}
