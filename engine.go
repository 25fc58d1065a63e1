package dnsresolver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"

	"github.com/riftwood/dnsresolver/cache"
)

// serverAction is what the server loop should do next after a single
// server's retry loop returns (§4.5's state machine summary:
// Classify -> {Return, NextTry, NextServer, TcpFallback, Fail}). NextTry is
// handled inside the retry loop itself via a plain Go "continue";
// handleDNSError signals it with actionRetrySame, which tryServer turns
// back into a "continue", so it never reaches the server loop.
type serverAction int

const (
	actionReturn serverAction = iota
	actionThrow
	actionNextServer
	actionTruncated
	actionRetrySame
)

// Engine is C5, the ResolverEngine: the per-question state machine that
// ties every other component together. It holds no per-query state; a
// single Engine is safe for concurrent use by multiple callers.
type Engine struct {
	Codec MessageCodec
	UDP   Transport
	TCP   Transport
	Cache *cache.Cache[CacheKey, *Response]
	Audit Audit

	// Roster is consulted only for the OPT side effect (§4.4); it may be
	// nil, in which case the side effect is skipped.
	Roster *ServerRoster
}

// NewEngine wires the five external collaborators into a ready-to-use
// Engine.
func NewEngine(codec MessageCodec, udp, tcp Transport, respCache *cache.Cache[CacheKey, *Response], audit Audit, roster *ServerRoster) *Engine {
	if audit == nil {
		audit = NoopAudit{}
	}
	return &Engine{Codec: codec, UDP: udp, TCP: tcp, Cache: respCache, Audit: audit, Roster: roster}
}

// Query runs the full state machine for a single question against servers,
// per §4.5. servers must be non-empty and already shuffled if applicable
// (ServerRoster.Shuffled).
func (e *Engine) Query(ctx context.Context, q Question, opts QueryOptions, servers []ServerEndpoint) (*Response, error) {
	if err := opts.Validate(); err != nil {
		return nil, wrapErr(KindInvalidArgument, "", err)
	}
	if len(servers) == 0 {
		return nil, ErrEmptyServers
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapErr(KindCancelled, "", err)
	}

	auditID := uuid.New()

	if !opts.UseCache {
		return e.dispatch(ctx, q, opts, servers, auditID)
	}

	// Single-flight: concurrent callers for the same fingerprint collapse
	// onto one dispatch (§5's "writers acquire per-key serialization
	// only"). The cache insertion itself happens inside dispatch, at the
	// exact point §4.1/§4.5 specify (per-server success, or a
	// negatively-cached DNS error).
	resp, _, err := e.Cache.Resolve(q.Key(), func() (*Response, error) {
		return e.dispatch(ctx, q, opts, servers, auditID)
	})
	return resp, err
}

// dispatch runs the server loop once over UDP (or TCP, if use_tcp_only),
// then drives the one-shot TCP fallback on truncation (§4.5 step 3).
func (e *Engine) dispatch(ctx context.Context, q Question, opts QueryOptions, servers []ServerEndpoint, auditID uuid.UUID) (*Response, error) {
	transport, transportName := e.UDP, "udp"
	if opts.UseTCPOnly {
		transport, transportName = e.TCP, "tcp"
	}

	resp, err, truncated := e.runServerLoop(ctx, q, opts, servers, transport, transportName, auditID)
	if !truncated {
		return resp, err
	}

	if !opts.UseTCPFallback {
		return nil, wrapErr(KindTruncatedFallbackDisabled, "", nil)
	}

	resp, err, truncated = e.runServerLoop(ctx, q, opts, servers, e.TCP, "tcp", auditID)
	if truncated {
		return nil, wrapErr(KindUnexpectedTruncatedOverTCP, "", nil)
	}
	return resp, err
}

// runServerLoop implements §4.5 step 2, the server loop. It returns either
// a terminal response/error, or truncated=true to signal the driver in
// dispatch.
func (e *Engine) runServerLoop(ctx context.Context, q Question, opts QueryOptions, servers []ServerEndpoint, transport Transport, transportName string, auditID uuid.UUID) (*Response, error, bool) {
	req, err := buildRequest(q, opts)
	if err != nil {
		return nil, err, false
	}

	key := q.Key()

	for i, server := range servers {
		isLastServer := i == len(servers)-1

		if i > 0 {
			if rerr := req.refreshID(); rerr != nil {
				return nil, wrapErr(KindConnectionFailure, server.String(), rerr), false
			}
		}

		if cerr := ctx.Err(); cerr != nil {
			return nil, wrapErr(KindCancelled, server.String(), cerr), false
		}

		// Re-checked per server per §4.5 step 2b ("on hit, return the
		// cached response immediately — still counted as this server's
		// result"); Query's outer Cache.Resolve already checked it once
		// before dispatch, so the first iteration's miss here double-counts
		// in Stats. Harmless: Stats is an observability counter, not used
		// for any decision.
		if opts.UseCache {
			if resp, ok := e.Cache.Get(key); ok {
				return resp, nil, false
			}
		}

		resp, qerr, action := e.tryServer(ctx, req, q, opts, server, transport, transportName, isLastServer, auditID)
		switch action {
		case actionReturn:
			return resp, qerr, false
		case actionThrow:
			return nil, qerr, false
		case actionTruncated:
			return nil, nil, true
		case actionNextServer:
			continue
		}
	}

	return nil, wrapErr(KindConnectionFailure, "", errors.New("server list exhausted")), false
}

// tryServer implements §4.5 step 2c, the retry loop for a single server.
func (e *Engine) tryServer(ctx context.Context, req *Request, q Question, opts QueryOptions, server ServerEndpoint, transport Transport, transportName string, isLastServer bool, auditID uuid.UUID) (*Response, error, serverAction) {
	totalTries := opts.Retries + 1
	key := q.Key()

	for try := 1; try <= totalTries; try++ {
		isLastTry := try == totalTries

		if try > 1 {
			if rerr := req.refreshID(); rerr != nil {
				return nil, wrapErr(KindConnectionFailure, server.String(), rerr), actionThrow
			}
		}

		if cerr := ctx.Err(); cerr != nil {
			return nil, wrapErr(KindCancelled, server.String(), cerr), actionThrow
		}

		payload, encErr := e.Codec.Encode(req)
		if encErr != nil {
			return nil, wrapErr(KindInvalidArgument, server.String(), encErr), actionThrow
		}

		start := time.Now()
		raw, sendErr := transport.Exchange(ctx, server, payload, opts.Timeout)
		rtt := time.Since(start)

		if sendErr != nil {
			kind := classifyTransportError(ctx, sendErr)
			e.emitAudit(opts, auditID, q, server, try, transportName, kind.String(), rtt, sendErr)

			switch kind {
			case KindCancelled:
				return nil, wrapErr(KindCancelled, server.String(), sendErr), actionThrow
			case KindTimeout, KindTransientIO:
				if !isLastTry {
					continue
				}
				if !isLastServer {
					return nil, nil, actionNextServer
				}
				return nil, wrapErr(kind, server.String(), sendErr), actionThrow
			default:
				if !isLastServer {
					return nil, nil, actionNextServer
				}
				return nil, wrapErr(KindConnectionFailure, server.String(), sendErr), actionThrow
			}
		}

		parsed, decErr := e.Codec.Decode(raw, server.String())
		if decErr != nil {
			var me *MalformedError
			if errors.As(decErr, &me) && implicitTruncation(me, transportName) {
				e.emitAudit(opts, auditID, q, server, try, transportName, "truncated", rtt, nil)
				return nil, nil, actionTruncated
			}

			e.emitAudit(opts, auditID, q, server, try, transportName, "malformed", rtt, decErr)
			if !isLastServer {
				return nil, nil, actionNextServer
			}
			return nil, wrapErr(KindMalformed, server.String(), decErr), actionThrow
		}

		if parsed.ID != req.ID {
			e.emitAudit(opts, auditID, q, server, try, transportName, "xid_mismatch", rtt, nil)
			if !isLastTry {
				continue
			}
			if !isLastServer {
				return nil, nil, actionNextServer
			}
			return nil, wrapErr(KindXidMismatch, server.String(), nil), actionThrow
		}

		applyOPTSideEffect(e.Roster, parsed)

		outcome := classify(parsed, q, opts.ContinueOnEmptyResponse)
		e.emitAudit(opts, auditID, q, server, try, transportName, outcome.String(), rtt, nil)

		switch outcome {
		case outcomeSuccess:
			if opts.UseCache {
				e.Cache.Put(key, parsed, minRecordTTL(parsed), false, 0, opts.MinimumCacheTimeout, opts.MaximumCacheTimeout)
			}
			return parsed, nil, actionReturn

		case outcomeTruncated:
			return nil, nil, actionTruncated

		case outcomeEmptyUnanswered:
			if !isLastServer {
				return nil, nil, actionNextServer
			}
			return parsed, nil, actionReturn

		case outcomeDNSError:
			resp, derr, action := e.handleDNSError(parsed, q, opts, server, isLastTry, isLastServer)
			if action == actionRetrySame {
				continue
			}
			return resp, derr, action
		}
	}

	return nil, wrapErr(KindConnectionFailure, server.String(), errors.New("retry loop exhausted")), actionThrow
}

// handleDNSError applies §7's DnsError row of the per-error decision table.
func (e *Engine) handleDNSError(resp *Response, q Question, opts QueryOptions, server ServerEndpoint, isLastTry, isLastServer bool) (*Response, error, serverAction) {
	if !opts.ContinueOnDNSError {
		if opts.ThrowDNSErrors {
			return nil, dnsError(server.String(), resp.Rcode), actionThrow
		}
		return resp, nil, actionReturn
	}

	if !isLastTry && (resp.Rcode == dns.RcodeServerFailure || resp.Rcode == dns.RcodeFormatError) {
		return nil, nil, actionRetrySame
	}

	if !isLastServer {
		return nil, nil, actionNextServer
	}

	// Only the last server's DnsError is confirmed: a not-last-server error
	// just means "try the next one", and caching it negatively here would
	// serve an unconfirmed failure to the next identical query even if a
	// later server succeeds or the overall call fails for an unrelated
	// reason (§7's DnsError row places negative caching in the
	// last-server column only).
	if opts.CacheFailedResults && opts.UseCache {
		e.Cache.Put(q.Key(), resp, opts.FailedResultsCacheDuration, true, opts.FailedResultsCacheDuration, opts.MinimumCacheTimeout, opts.MaximumCacheTimeout)
	}

	if opts.ThrowDNSErrors {
		return nil, dnsError(server.String(), resp.Rcode), actionThrow
	}
	return resp, nil, actionReturn
}

// emitAudit sends an AuditEvent if enable_audit_trail is set.
func (e *Engine) emitAudit(opts QueryOptions, queryID uuid.UUID, q Question, server ServerEndpoint, attempt int, transport, outcome string, rtt time.Duration, err error) {
	if !opts.EnableAuditTrail || e.Audit == nil {
		return
	}
	e.Audit.Emit(AuditEvent{
		QueryID:   queryID,
		Question:  q,
		Server:    server.String(),
		Attempt:   attempt,
		Transport: transport,
		Outcome:   outcome,
		RTT:       int64(rtt),
		Err:       err,
	})
}

// classifyTransportError maps a raw Transport.Exchange error to a Kind
// (§7's error kinds), checking cancellation first since it always wins
// over a concurrently expiring timeout (§5). A dial failure (connection
// refused, network/host unreachable, ...) means the server itself is
// unreachable, so it is classified as KindConnectionFailure rather than
// KindTransientIO: §4.5 step 2c routes those straight to the next server
// instead of burning the remaining retries on a dead one.
func classifyTransportError(ctx context.Context, err error) Kind {
	if ctx.Err() != nil {
		return KindCancelled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnectionFailure
	}
	return KindTransientIO
}

// minRecordTTL computes raw_ttl per §4.1 step 1: the minimum TTL over
// answers ∪ authorities ∪ additionals, or 0 if there are none.
func minRecordTTL(resp *Response) time.Duration {
	recs := resp.records()
	if len(recs) == 0 {
		return 0
	}

	min := recs[0].Header().Ttl
	for _, rr := range recs[1:] {
		if rr.Header().Ttl < min {
			min = rr.Header().Ttl
		}
	}

	return time.Duration(min) * time.Second
}
