package dnsresolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyServersFailsQueryBeforeIO(t *testing.T) {
	called := false
	udp := fakeTransport{exchange: func(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
		called = true
		return nil, timeoutErr{}
	}}

	r, err := New(
		WithServerDiscovery(staticDiscovery{}),
		WithTransports(udp, fakeTransport{}),
		WithDefaultOptions(func() QueryOptions {
			o := DefaultQueryOptions()
			o.AutoResolveNameServers = false
			return o
		}()),
	)
	require.NoError(t, err)

	_, err = r.Query(context.Background(), exampleQuestion())

	assert.ErrorIs(t, err, ErrEmptyServers)
	assert.False(t, called)
}

func TestResolver_QueryUsesConfiguredServers(t *testing.T) {
	udp := fakeTransport{exchange: func(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
		id := echoID(t, payload)
		return packResponse(t, id, dns.RcodeSuccess, false, aRecord("example.com.", 60, "93.184.216.34")), nil
	}}

	r, err := New(
		WithServers(mustEndpoint(t, "127.0.0.1:53")),
		WithServerDiscovery(staticDiscovery{}),
		WithTransports(udp, fakeTransport{}),
	)
	require.NoError(t, err)

	resp, err := r.Query(context.Background(), exampleQuestion())

	require.NoError(t, err)
	require.Len(t, resp.Answers, 1)
}

func TestResolver_QueryWithOptionsServersOverrideClientDefault(t *testing.T) {
	var seen []string
	udp := fakeTransport{exchange: func(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
		seen = append(seen, server.String())
		id := echoID(t, payload)
		return packResponse(t, id, dns.RcodeSuccess, false, aRecord("example.com.", 60, "93.184.216.34")), nil
	}}

	r, err := New(
		WithServers(mustEndpoint(t, "10.0.0.1:53")),
		WithServerDiscovery(staticDiscovery{}),
		WithTransports(udp, fakeTransport{}),
	)
	require.NoError(t, err)

	opts := DefaultQueryOptions()
	opts.Servers = []ServerEndpoint{mustEndpoint(t, "192.0.2.53:53")}
	opts.UseRandomNameServer = false

	_, err = r.QueryWithOptions(context.Background(), exampleQuestion(), opts)

	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "192.0.2.53:53", seen[0])
}

func TestResolver_ClearCacheRemovesEntries(t *testing.T) {
	udp := fakeTransport{exchange: func(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
		id := echoID(t, payload)
		return packResponse(t, id, dns.RcodeSuccess, false, aRecord("example.com.", 60, "93.184.216.34")), nil
	}}

	r, err := New(
		WithServers(mustEndpoint(t, "127.0.0.1:53")),
		WithServerDiscovery(staticDiscovery{}),
		WithTransports(udp, fakeTransport{}),
	)
	require.NoError(t, err)

	_, err = r.Query(context.Background(), exampleQuestion())
	require.NoError(t, err)
	assert.Equal(t, 1, r.CacheStats().Entries)

	r.ClearCache()

	assert.Equal(t, 0, r.CacheStats().Entries)
}

func TestResolver_CacheStatsCountsHitsAndMisses(t *testing.T) {
	udp := fakeTransport{exchange: func(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
		id := echoID(t, payload)
		return packResponse(t, id, dns.RcodeSuccess, false, aRecord("example.com.", 60, "93.184.216.34")), nil
	}}

	r, err := New(
		WithServers(mustEndpoint(t, "127.0.0.1:53")),
		WithServerDiscovery(staticDiscovery{}),
		WithTransports(udp, fakeTransport{}),
	)
	require.NoError(t, err)

	_, err = r.Query(context.Background(), exampleQuestion()) // miss, then dispatch+insert
	require.NoError(t, err)
	_, err = r.Query(context.Background(), exampleQuestion()) // hit
	require.NoError(t, err)

	stats := r.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.GreaterOrEqual(t, stats.Misses, int64(1))
}

func TestResolver_QueryReverse_BuildsArpaQuestion(t *testing.T) {
	var gotName string
	udp := fakeTransport{exchange: func(ctx context.Context, server ServerEndpoint, payload []byte, timeout time.Duration) ([]byte, error) {
		m := new(dns.Msg)
		require.NoError(t, m.Unpack(payload))
		gotName = m.Question[0].Name
		return packResponse(t, m.Id, dns.RcodeSuccess, false), nil
	}}

	r, err := New(
		WithServers(mustEndpoint(t, "127.0.0.1:53")),
		WithServerDiscovery(staticDiscovery{}),
		WithTransports(udp, fakeTransport{}),
	)
	require.NoError(t, err)

	_, err = r.QueryReverse(context.Background(), net.ParseIP("93.184.216.34"))

	require.NoError(t, err)
	assert.Equal(t, "34.216.184.93.in-addr.arpa.", gotName)
}

func TestArpaName_IPv6(t *testing.T) {
	name, err := arpaName(net.ParseIP("2001:db8::1"))
	require.NoError(t, err)
	assert.True(t, len(name) > 0)
	assert.Contains(t, name, "ip6.arpa.")
}

// staticDiscovery is a ServerDiscovery that never finds anything, used in
// tests that want full control over the roster via WithServers.
type staticDiscovery struct{}

func (staticDiscovery) Discover(ctx context.Context) ([]ServerEndpoint, error) {
	return nil, nil
}
