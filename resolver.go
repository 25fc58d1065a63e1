package dnsresolver

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/riftwood/dnsresolver/cache"
)

// Resolver is the public entry point: a long-lived client holding a server
// roster, a response cache and the four external collaborators, all wired
// to the default adapters unless overridden by ResolverOption.
type Resolver struct {
	engine  *Engine
	roster  *ServerRoster
	cache   *cache.Cache[CacheKey, *Response]
	options QueryOptions
}

// ResolverOption customizes New.
type ResolverOption func(*resolverConfig)

type resolverConfig struct {
	servers   []ServerEndpoint
	discovery ServerDiscovery
	codec     MessageCodec
	udp       Transport
	tcp       Transport
	audit     Audit
	options   QueryOptions
}

// WithServers seeds the roster's static server list.
func WithServers(servers ...ServerEndpoint) ResolverOption {
	return func(c *resolverConfig) { c.servers = servers }
}

// WithServerDiscovery overrides the platform-default ServerDiscovery.
func WithServerDiscovery(d ServerDiscovery) ResolverOption {
	return func(c *resolverConfig) { c.discovery = d }
}

// WithMessageCodec overrides the default miekg/dns-backed MessageCodec.
func WithMessageCodec(codec MessageCodec) ResolverOption {
	return func(c *resolverConfig) { c.codec = codec }
}

// WithTransports overrides the default UDP/TCP Transport implementations,
// e.g. for tests.
func WithTransports(udp, tcp Transport) ResolverOption {
	return func(c *resolverConfig) { c.udp, c.tcp = udp, tcp }
}

// WithAudit installs a structured Audit sink.
func WithAudit(a Audit) ResolverOption {
	return func(c *resolverConfig) { c.audit = a }
}

// WithDefaultOptions overrides the client-level default QueryOptions; a
// QueryWithOptions call can still replace them as a whole for that single
// call (§9 supplemented "per-query options override" feature).
func WithDefaultOptions(opts QueryOptions) ResolverOption {
	return func(c *resolverConfig) { c.options = opts }
}

// New builds a Resolver. With no options it discovers servers from the host
// resolver configuration and uses the default miekg/dns codec and raw
// socket transports.
func New(opts ...ResolverOption) (*Resolver, error) {
	cfg := resolverConfig{
		discovery: NewDefaultServerDiscovery(),
		codec:     dnsCodec{},
		udp:       udpTransport{},
		tcp:       tcpTransport{},
		audit:     NoopAudit{},
		options:   DefaultQueryOptions(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	if err := cfg.options.Validate(); err != nil {
		return nil, wrapErr(KindInvalidArgument, "", err)
	}

	roster := NewServerRoster(cfg.servers, cfg.discovery)
	if cfg.options.AutoResolveNameServers {
		_ = roster.Refresh(context.Background())
	}

	respCache := cache.New[CacheKey, *Response]()
	engine := NewEngine(cfg.codec, cfg.udp, cfg.tcp, respCache, cfg.audit, roster)

	return &Resolver{engine: engine, roster: roster, cache: respCache, options: cfg.options}, nil
}

// Query resolves q using the client's default options, blocking until a
// response or a terminal error.
func (r *Resolver) Query(ctx context.Context, q Question) (*Response, error) {
	return r.QueryWithOptions(ctx, q, r.options)
}

// QueryWithOptions resolves q using opts in place of the client default for
// this single call (the "per-query options override" feature; servers
// carried by opts replace the roster outright, never merged with
// auto-resolved servers — see DESIGN.md's Open Question decision).
func (r *Resolver) QueryWithOptions(ctx context.Context, q Question, opts QueryOptions) (*Response, error) {
	if opts.AutoResolveNameServers {
		if err := r.roster.Refresh(ctx); err != nil {
			Log.WithError(err).Debug("roster refresh skipped or failed")
		}
	}

	servers := r.roster.Effective(opts)
	if len(servers) == 0 {
		return nil, ErrEmptyServers
	}
	servers = Shuffled(servers, opts.UseRandomNameServer)

	return r.engine.Query(ctx, q, opts, servers)
}

// QueryReverse builds and resolves the PTR question for ip (§9
// supplemented "QueryReverse" feature), mirroring the teacher library's
// arpaName/arpaName4/arpaName6 helpers.
func (r *Resolver) QueryReverse(ctx context.Context, ip net.IP) (*Response, error) {
	name, err := arpaName(ip)
	if err != nil {
		return nil, wrapErr(KindInvalidArgument, "", err)
	}

	q := Question{Name: name, Type: dns.TypePTR, Class: dns.ClassINET}
	return r.Query(ctx, q)
}

// arpaName renders ip's reverse-lookup question name under
// in-addr.arpa. (IPv4) or ip6.arpa. (IPv6).
func arpaName(ip net.IP) (string, error) {
	if v4 := ip.To4(); v4 != nil {
		return arpaName4(v4), nil
	}
	if v6 := ip.To16(); v6 != nil && ip.To4() == nil {
		return arpaName6(v6), nil
	}
	return "", fmt.Errorf("dnsresolver: not a valid IP address: %v", ip)
}

func arpaName4(ip net.IP) string {
	return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa.", ip[3], ip[2], ip[1], ip[0])
}

func arpaName6(ip net.IP) string {
	const hexDigit = "0123456789abcdef"
	var b strings.Builder
	for i := len(ip) - 1; i >= 0; i-- {
		b.WriteByte(hexDigit[ip[i]&0x0f])
		b.WriteByte('.')
		b.WriteByte(hexDigit[ip[i]>>4])
		b.WriteByte('.')
	}
	b.WriteString("ip6.arpa.")
	return b.String()
}

// ClearCache invalidates every cached response (teacher's
// Resolver.ClearCache, carried forward unchanged).
func (r *Resolver) ClearCache() {
	r.cache.Clear()
}

// CacheStats returns a snapshot of cache hit/miss counters and entry count.
func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.Stats()
}

// RefreshServers forces an immediate roster refresh attempt, subject to the
// 60-second throttle (§4.2).
func (r *Resolver) RefreshServers(ctx context.Context) error {
	return r.roster.Refresh(ctx)
}
