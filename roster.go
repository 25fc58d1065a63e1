package dnsresolver

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// ServerEndpoint is an explicit, validated name-server address, replacing
// the ad-hoc string/net.Addr conversions a stub resolver otherwise juggles
// (§9's "implicit conversions" design note).
type ServerEndpoint struct {
	addr netip.AddrPort

	// advertisedUDPSize is the OPT-record side effect (§4.4): the last
	// UDP payload size this server advertised. Zero means unknown. It is
	// recorded only; request building sizes EDNS from QueryOptions and
	// does not read it.
	advertisedUDPSize uint32
}

// NewServerEndpoint builds a ServerEndpoint from an "ip" or "ip:port"
// string. The default port is 53.
func NewServerEndpoint(address string) (ServerEndpoint, error) {
	if host, port, err := net.SplitHostPort(address); err == nil {
		ap, perr := netip.ParseAddrPort(net.JoinHostPort(host, port))
		if perr == nil {
			return ServerEndpoint{addr: ap}, nil
		}
		ip, ierr := netip.ParseAddr(host)
		if ierr != nil {
			return ServerEndpoint{}, fmt.Errorf("dnsresolver: not an ip address: %s", address)
		}
		p, perr2 := parsePort(port)
		if perr2 != nil {
			return ServerEndpoint{}, perr2
		}
		return ServerEndpoint{addr: netip.AddrPortFrom(ip, p)}, nil
	}

	ip, err := netip.ParseAddr(address)
	if err != nil {
		return ServerEndpoint{}, fmt.Errorf("dnsresolver: not an ip address: %s", address)
	}
	return ServerEndpoint{addr: netip.AddrPortFrom(ip, 53)}, nil
}

func parsePort(s string) (uint16, error) {
	var p int
	if _, err := fmt.Sscanf(s, "%d", &p); err != nil || p <= 0 || p > 65535 {
		return 0, fmt.Errorf("dnsresolver: invalid port: %s", s)
	}
	return uint16(p), nil
}

// IsValid reports whether the endpoint is usable: it must not be the
// any-address (0.0.0.0 or ::).
func (s ServerEndpoint) IsValid() bool {
	return s.addr.IsValid() && !s.addr.Addr().IsUnspecified()
}

// String returns the "ip:port" form used for dialing and logging.
func (s ServerEndpoint) String() string {
	return s.addr.String()
}

func (s ServerEndpoint) key() netip.AddrPort { return s.addr }

// ServerDiscovery resolves name servers from OS state (interface
// enumeration, /etc/resolv.conf, Windows NRPT, ...). It is an external
// collaborator (§1); the default implementation is platform-specific, see
// discovery_unix.go / discovery_windows.go.
type ServerDiscovery interface {
	Discover(ctx context.Context) ([]ServerEndpoint, error)
}

// refreshInterval is the minimum time between two ServerRoster refreshes
// (§4.2).
const refreshInterval = 60 * time.Second

// ServerRoster holds the effective, ordered, deduplicated list of name
// servers a ResolverEngine dispatches to. It combines a user-supplied list
// with, optionally, a ServerDiscovery-provided list, and refreshes the
// discovered half periodically.
type ServerRoster struct {
	discovery ServerDiscovery
	static    []ServerEndpoint

	lastRefreshUnixNano atomic.Int64

	mu         sync.RWMutex
	discovered []ServerEndpoint
}

// NewServerRoster returns a roster seeded with static and backed by
// discovery for the auto-resolved half. discovery may be nil, in which case
// the roster only ever contains static.
func NewServerRoster(static []ServerEndpoint, discovery ServerDiscovery) *ServerRoster {
	return &ServerRoster{
		discovery: discovery,
		static:    dedupValid(static),
	}
}

func dedupValid(in []ServerEndpoint) []ServerEndpoint {
	seen := make(map[netip.AddrPort]bool, len(in))
	out := make([]ServerEndpoint, 0, len(in))
	for _, s := range in {
		if !s.IsValid() {
			continue
		}
		if seen[s.key()] {
			continue
		}
		seen[s.key()] = true
		out = append(out, s)
	}
	return out
}

// Refresh rebuilds the discovered half of the roster, at most once per
// refreshInterval. Concurrent callers collapse onto a single winner via a
// compare-and-swap on the last-run timestamp (§4.2, §9's "skip-worker
// timer"); losers return immediately without error.
func (r *ServerRoster) Refresh(ctx context.Context) error {
	if r.discovery == nil {
		return nil
	}

	now := time.Now().UnixNano()
	last := r.lastRefreshUnixNano.Load()
	if now-last < int64(refreshInterval) {
		return nil
	}
	if !r.lastRefreshUnixNano.CompareAndSwap(last, now) {
		return nil // another goroutine won the race
	}

	discovered, err := r.discovery.Discover(ctx)
	if err != nil {
		Log.WithError(err).Warn("server discovery failed, keeping previous roster")
		return fmt.Errorf("dnsresolver: server discovery: %w", err)
	}

	r.mu.Lock()
	r.discovered = dedupValid(discovered)
	r.mu.Unlock()

	return nil
}

// Effective returns the roster's current servers: static entries first,
// then discovered entries not already present, deduplicated. If opts
// carries its own Servers, they replace the roster outright (§9 Open
// Question #1: never merged with auto-resolved servers).
func (r *ServerRoster) Effective(opts QueryOptions) []ServerEndpoint {
	if len(opts.Servers) > 0 {
		return dedupValid(opts.Servers)
	}

	servers := append([]ServerEndpoint{}, r.static...)

	if opts.AutoResolveNameServers {
		r.mu.RLock()
		discovered := r.discovered
		r.mu.RUnlock()

		seen := make(map[netip.AddrPort]bool, len(servers))
		for _, s := range servers {
			seen[s.key()] = true
		}
		for _, s := range discovered {
			if seen[s.key()] {
				continue
			}
			seen[s.key()] = true
			servers = append(servers, s)
		}
	}

	return servers
}

// Shuffled returns servers in a uniformly permuted copy if
// use_random_name_server is set and there is more than one entry; otherwise
// it returns servers unchanged (§4.2).
func Shuffled(servers []ServerEndpoint, enabled bool) []ServerEndpoint {
	if !enabled || len(servers) < 2 {
		return servers
	}

	out := append([]ServerEndpoint{}, servers...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// recordAdvertisedUDPSize applies the OPT side effect (§4.4) to the roster
// entry matching addr, if still present.
func (r *ServerRoster) recordAdvertisedUDPSize(addr netip.AddrPort, size uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.discovered {
		if r.discovered[i].key() == addr {
			r.discovered[i].advertisedUDPSize = size
			return
		}
	}
	for i := range r.static {
		if r.static[i].key() == addr {
			r.static[i].advertisedUDPSize = size
			return
		}
	}
}
