package cdns

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestListenHandler(t *testing.T) {
	loader := NewStaticLoader([]string{"ads.example.com"})
	blocklist, err := NewBlocklistAuthority("bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{})
	require.NoError(t, err)
	forward := &testStore{lookup: staticAnswer("192.0.2.7")}
	zones, err := NewZoneSet(NewAuthorityChain("root", ".", blocklist, forward))
	require.NoError(t, err)

	addr := runTestDNSServer(t, listenHandler("test-listener", "udp", "", zones, nil))
	client := new(dns.Client)

	// Blocked name is answered with the null address
	q := new(dns.Msg)
	q.SetQuestion("ads.example.com.", dns.TypeA)
	r, _, err := client.Exchange(q, addr)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Answer, 1)
	require.True(t, r.Answer[0].(*dns.A).A.Equal(net.IPv4zero))

	// Unblocked name falls through to the next store
	q = new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)
	r, _, err = client.Exchange(q, addr)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Answer, 1)
	require.Equal(t, "192.0.2.7", r.Answer[0].(*dns.A).A.String())
}

func TestListenHandlerUnhandled(t *testing.T) {
	zones, err := NewZoneSet(NewAuthorityChain("root", ".", &testStore{}))
	require.NoError(t, err)

	addr := runTestDNSServer(t, listenHandler("test-listener", "udp", "", zones, nil))

	q := new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)
	r, _, err := new(dns.Client).Exchange(q, addr)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeNameError, r.Rcode)
}

func TestListenHandlerNoZone(t *testing.T) {
	zones, err := NewZoneSet(NewAuthorityChain("example", "example.com.", &testStore{}))
	require.NoError(t, err)

	addr := runTestDNSServer(t, listenHandler("test-listener", "udp", "", zones, nil))

	q := new(dns.Msg)
	q.SetQuestion("www.example.org.", dns.TypeA)
	r, _, err := new(dns.Client).Exchange(q, addr)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeRefused, r.Rcode)
}

func TestListenHandlerACL(t *testing.T) {
	zones, err := NewZoneSet(NewAuthorityChain("root", ".", &testStore{lookup: staticAnswer("192.0.2.7")}))
	require.NoError(t, err)

	// Only a network the test client isn't in
	_, blocked, err := net.ParseCIDR("198.51.100.0/24")
	require.NoError(t, err)
	addr := runTestDNSServer(t, listenHandler("test-listener", "udp", "", zones, []*net.IPNet{blocked}))

	q := new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)
	r, _, err := new(dns.Client).Exchange(q, addr)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeRefused, r.Rcode)
}
