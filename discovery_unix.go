//go:build !windows
// +build !windows

package dnsresolver

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// resolvConfDiscovery is the default ServerDiscovery on *nix systems: it
// parses /etc/resolv.conf, exactly as the teacher library's
// discoverRootServers did, generalized from "find the root servers" to
// "find the servers a stub resolver should dispatch to" (this package never
// walks the root zone, per spec's Non-goals).
type resolvConfDiscovery struct {
	path string
}

// NewDefaultServerDiscovery returns the platform default ServerDiscovery.
func NewDefaultServerDiscovery() ServerDiscovery {
	return resolvConfDiscovery{path: "/etc/resolv.conf"}
}

// Discover implements ServerDiscovery.
func (d resolvConfDiscovery) Discover(ctx context.Context) ([]ServerEndpoint, error) {
	config, err := dns.ClientConfigFromFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("dnsresolver: parse %s: %w", d.path, err)
	}

	var servers []ServerEndpoint
	for _, addr := range config.Servers {
		ep, err := NewServerEndpoint(addr + ":" + config.Port)
		if err != nil {
			continue
		}
		servers = append(servers, ep)
	}

	return servers, nil
}
