package dnsresolver

import (
	"context"
	"errors"
)

// windowsDiscovery is the default ServerDiscovery on Windows. Reading the
// active NRPT/adapter configuration requires platform APIs this module
// does not vendor (see teacher's root_windows.go TODO); callers on Windows
// should supply their own ServerDiscovery or a static server list.
type windowsDiscovery struct{}

// NewDefaultServerDiscovery returns the platform default ServerDiscovery.
func NewDefaultServerDiscovery() ServerDiscovery {
	return windowsDiscovery{}
}

// Discover implements ServerDiscovery.
func (windowsDiscovery) Discover(ctx context.Context) ([]ServerEndpoint, error) {
	return nil, errors.New("dnsresolver: automatic server discovery is not implemented on windows")
}
