package cdns

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestBlocklistAuthority(t *testing.T) {
	loader := NewStaticLoader([]string{
		"ads.example.com",
		"*.tracker.example.com",
		"",
	})
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{
		WildcardMatch: true,
	})
	require.NoError(t, err)
	ctx := context.Background()

	// Exact entry answered with the null address
	rrs, err := a.Lookup(ctx, "ads.example.com.", dns.TypeA)
	require.NoError(t, err)
	require.Len(t, rrs, 1)
	arec, ok := rrs[0].(*dns.A)
	require.True(t, ok)
	require.True(t, arec.A.Equal(net.IPv4zero))
	require.Equal(t, "ads.example.com.", arec.Hdr.Name)

	// Wildcard coverage
	_, err = a.Lookup(ctx, "x.tracker.example.com.", dns.TypeA)
	require.NoError(t, err)

	// The wildcard anchor itself is not covered
	_, err = a.Lookup(ctx, "tracker.example.com.", dns.TypeA)
	require.ErrorIs(t, err, ErrNotHandled)

	// Unlisted names fall through
	_, err = a.Lookup(ctx, "safe.example.com.", dns.TypeA)
	require.ErrorIs(t, err, ErrNotHandled)
}

func TestBlocklistAuthorityFromFile(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "bl.txt")
	content := "ads.example.com\n\n*.tracker.example.com\nbad*entry.example.com\nAds.Example.COM.\n"
	require.NoError(t, os.WriteFile(list, []byte(content), 0o644))

	loader := NewFileLoader(list, FileLoaderOptions{})
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{
		WildcardMatch: true,
	})
	require.NoError(t, err)

	// Blanks, the malformed line and the duplicate are dropped
	require.Equal(t, 2, a.trie.Len())

	ctx := context.Background()
	_, err = a.Lookup(ctx, "ads.example.com.", dns.TypeA)
	require.NoError(t, err)
	_, err = a.Lookup(ctx, "bad*entry.example.com.", dns.TypeA)
	require.ErrorIs(t, err, ErrNotHandled)
}

func TestBlocklistAuthorityUnreadableList(t *testing.T) {
	loader := NewFileLoader("does-not-exist.txt", FileLoaderOptions{})
	_, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{})
	require.Error(t, err)
}

func TestBlocklistAuthorityWildcardDisabled(t *testing.T) {
	loader := NewStaticLoader([]string{"*.tracker.example.com", "ads.example.com"})
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{
		WildcardMatch: false,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.Lookup(ctx, "x.tracker.example.com.", dns.TypeA)
	require.ErrorIs(t, err, ErrNotHandled)
	_, err = a.Lookup(ctx, "ads.example.com.", dns.TypeA)
	require.NoError(t, err)
}

func TestBlocklistAuthorityMinWildcardDepth(t *testing.T) {
	loader := NewStaticLoader([]string{"*.com"})
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{
		WildcardMatch:    true,
		MinWildcardDepth: 1,
	})
	require.NoError(t, err)

	_, err = a.Lookup(context.Background(), "example.com.", dns.TypeA)
	require.ErrorIs(t, err, ErrNotHandled)
}

func TestBlocklistAuthorityCapabilities(t *testing.T) {
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{NewStaticLoader(nil)}, BlocklistAuthorityOptions{})
	require.NoError(t, err)

	require.Equal(t, ZoneHint, a.ZoneType())
	require.False(t, a.IsAXFRAllowed())

	err = a.Update(new(dns.Msg))
	require.ErrorIs(t, err, ErrNotImplemented)

	// NSEC is rejected as a missing capability, not as a data miss
	_, err = a.NSECRecords("ads.example.com.")
	require.ErrorIs(t, err, ErrUnsupportedCapability)
	require.NotErrorIs(t, err, ErrNotHandled)
}

func TestBlocklistAuthoritySinkholePolicies(t *testing.T) {
	loader := NewStaticLoader([]string{"ads.example.com"})
	ctx := context.Background()

	// Default policy answers every type with a null A record
	a, err := NewBlocklistAuthority("bl-null", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{})
	require.NoError(t, err)
	rrs, err := a.Lookup(ctx, "ads.example.com.", dns.TypeAAAA)
	require.NoError(t, err)
	require.Len(t, rrs, 1)
	require.Equal(t, dns.TypeA, rrs[0].Header().Rrtype)

	// NODATA policy answers non-address types with an empty set
	a, err = NewBlocklistAuthority("bl-nodata", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{
		Policy: SinkholeNoData,
	})
	require.NoError(t, err)
	rrs, err = a.Lookup(ctx, "ads.example.com.", dns.TypeMX)
	require.NoError(t, err)
	require.Empty(t, rrs)
	rrs, err = a.Lookup(ctx, "ads.example.com.", dns.TypeA)
	require.NoError(t, err)
	require.Len(t, rrs, 1)
}

func TestBlocklistAuthorityReload(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "bl.txt")
	require.NoError(t, os.WriteFile(list, []byte("ads.example.com\n"), 0o644))

	loader := NewFileLoader(list, FileLoaderOptions{})
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.Lookup(ctx, "new.example.com.", dns.TypeA)
	require.ErrorIs(t, err, ErrNotHandled)

	// Rewrite the list and rebuild; the new ruleset replaces the old one
	require.NoError(t, os.WriteFile(list, []byte("new.example.com\n"), 0o644))
	a.rebuild()

	_, err = a.Lookup(ctx, "new.example.com.", dns.TypeA)
	require.NoError(t, err)
	_, err = a.Lookup(ctx, "ads.example.com.", dns.TypeA)
	require.ErrorIs(t, err, ErrNotHandled)
}

// Timer refresh and file watching can trigger reloads at the same time. Run
// under -race: rebuilds from multiple goroutines must not trip over the
// loaders or the matcher swap.
func TestBlocklistAuthorityConcurrentReload(t *testing.T) {
	list := filepath.Join(t.TempDir(), "bl.txt")
	require.NoError(t, os.WriteFile(list, []byte("ads.example.com\n"), 0o644))

	loader := NewFileLoader(list, FileLoaderOptions{AllowFailure: true})
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{})
	require.NoError(t, err)
	defer a.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				a.rebuild()
			}
		}()
	}
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		_, _ = a.Lookup(ctx, "ads.example.com.", dns.TypeA)
	}
	wg.Wait()

	rrs, err := a.Lookup(ctx, "ads.example.com.", dns.TypeA)
	require.NoError(t, err)
	require.Len(t, rrs, 1)
}

func TestBlocklistAuthorityClose(t *testing.T) {
	list := filepath.Join(t.TempDir(), "bl.txt")
	require.NoError(t, os.WriteFile(list, []byte("ads.example.com\n"), 0o644))

	loader := NewFileLoader(list, FileLoaderOptions{})
	a, err := NewBlocklistAuthority("test-bl", ".", []BlocklistLoader{loader}, BlocklistAuthorityOptions{
		Refresh: time.Minute,
		Watch:   true,
	})
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	// Lookups keep working on the last ruleset after shutdown
	_, err = a.Lookup(context.Background(), "ads.example.com.", dns.TypeA)
	require.NoError(t, err)
}
