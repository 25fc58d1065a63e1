package dnsresolver

import (
	"fmt"
	"time"
)

// Infinite is the sentinel duration meaning "no timeout"/"no clamp" for the
// options below that accept it.
const Infinite time.Duration = -1

// maxValidDuration bounds timeout, the cache TTL clamps, and the negative
// cache duration: roughly 24 days, per §6.3's validation rule.
const maxValidDuration = 24 * 24 * time.Hour

// QueryOptions is the recognized configuration surface (§6.3). A
// zero-valued QueryOptions is not valid to use directly; call
// DefaultQueryOptions and override fields on the result.
type QueryOptions struct {
	// Recursion sets the RD bit on outgoing requests.
	Recursion bool
	// UseCache enables cache read/write for this query.
	UseCache bool
	// EnableAuditTrail emits structured Audit events for this query.
	EnableAuditTrail bool
	// Retries is the number of additional tries per server; total
	// attempts per server is Retries+1.
	Retries int
	// ThrowDNSErrors surfaces DNS error responses as a *ResolveError
	// instead of returning the response to the caller.
	ThrowDNSErrors bool
	// Timeout is the per-transport-call deadline. Infinite disables it.
	Timeout time.Duration
	// UseTCPFallback permits UDP->TCP retry on truncation.
	UseTCPFallback bool
	// UseTCPOnly skips UDP entirely.
	UseTCPOnly bool
	// ContinueOnDNSError tries the next server on a DNS error response.
	ContinueOnDNSError bool
	// ContinueOnEmptyResponse tries the next server when the question is
	// judged unanswered (§4.4).
	ContinueOnEmptyResponse bool
	// UseRandomNameServer shuffles the roster once per query.
	UseRandomNameServer bool
	// ExtendedDNSBufferSize is the EDNS UDP buffer size advertised in the
	// OPT record, clamped to [512, 4096].
	ExtendedDNSBufferSize uint16
	// RequestDNSSECRecords sets the OPT DO flag and forces EDNS on.
	RequestDNSSECRecords bool
	// CacheFailedResults negatively caches DnsError responses.
	CacheFailedResults bool
	// FailedResultsCacheDuration is the TTL used for negative cache
	// entries.
	FailedResultsCacheDuration time.Duration
	// MinimumCacheTimeout lower-clamps the TTL derived from a response. A
	// zero value means unset.
	MinimumCacheTimeout time.Duration
	// MaximumCacheTimeout upper-clamps the TTL derived from a response. A
	// zero value means unset.
	MaximumCacheTimeout time.Duration
	// AutoResolveNameServers includes the ServerDiscovery-provided
	// servers in the roster in addition to any user-supplied servers.
	AutoResolveNameServers bool

	// Servers, if non-empty, overrides the client's roster entirely for
	// this query. Per the documented (intentionally unfixed) upstream
	// behavior, these servers are never merged with auto-resolved ones;
	// see DESIGN.md's Open Question decision #1.
	Servers []ServerEndpoint
}

// DefaultQueryOptions returns the options table's documented defaults
// (§6.3).
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Recursion:                  true,
		UseCache:                   true,
		EnableAuditTrail:           false,
		Retries:                    2,
		ThrowDNSErrors:             false,
		Timeout:                    5 * time.Second,
		UseTCPFallback:             true,
		UseTCPOnly:                 false,
		ContinueOnDNSError:         true,
		ContinueOnEmptyResponse:    true,
		UseRandomNameServer:        true,
		ExtendedDNSBufferSize:      4096,
		RequestDNSSECRecords:       false,
		CacheFailedResults:         false,
		FailedResultsCacheDuration: 5 * time.Second,
		MinimumCacheTimeout:        0,
		MaximumCacheTimeout:        0,
		AutoResolveNameServers:     true,
	}
}

// Validate checks the duration-valued options against §6.3's rule: strictly
// positive and at most ~24 days, or Infinite. A zero minimum/maximum cache
// timeout is treated as "unset" and always passes.
func (o QueryOptions) Validate() error {
	if err := validateDuration("timeout", o.Timeout, false); err != nil {
		return err
	}
	if err := validateDuration("failed_results_cache_duration", o.FailedResultsCacheDuration, false); err != nil {
		return err
	}
	if err := validateDuration("minimum_cache_timeout", o.MinimumCacheTimeout, true); err != nil {
		return err
	}
	if err := validateDuration("maximum_cache_timeout", o.MaximumCacheTimeout, true); err != nil {
		return err
	}
	if o.MinimumCacheTimeout > 0 && o.MaximumCacheTimeout > 0 && o.MinimumCacheTimeout > o.MaximumCacheTimeout {
		return fmt.Errorf("dnsresolver: minimum_cache_timeout exceeds maximum_cache_timeout")
	}
	return nil
}

func validateDuration(name string, d time.Duration, zeroIsUnset bool) error {
	if d == Infinite {
		return nil
	}
	if zeroIsUnset && d == 0 {
		return nil
	}
	if d <= 0 {
		return fmt.Errorf("dnsresolver: %s must be positive or Infinite, got %s", name, d)
	}
	if d > maxValidDuration {
		return fmt.Errorf("dnsresolver: %s exceeds the maximum of %s", name, maxValidDuration)
	}
	return nil
}

// clampedBufferSize returns ExtendedDNSBufferSize clamped to [512, 4096].
func (o QueryOptions) clampedBufferSize() uint16 {
	switch {
	case o.ExtendedDNSBufferSize < 512:
		return 512
	case o.ExtendedDNSBufferSize > 4096:
		return 4096
	default:
		return o.ExtendedDNSBufferSize
	}
}

// wantsEDNS reports whether QueryBuilder must attach an OPT record (§4.3).
func (o QueryOptions) wantsEDNS() bool {
	return o.ExtendedDNSBufferSize > 512 || o.RequestDNSSECRecords
}
