package cdns

import (
	"context"

	"github.com/miekg/dns"
)

// testStore is a chain member for tests with a canned lookup function and a
// hit counter.
type testStore struct {
	hits   int
	lookup func(name string, qtype uint16) ([]dns.RR, error)
}

var _ Authority = &testStore{}

func (s *testStore) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	s.hits++
	if s.lookup == nil {
		return nil, ErrNotHandled
	}
	return s.lookup(name, qtype)
}

func (s *testStore) Origin() string        { return "." }
func (s *testStore) ZoneType() ZoneType    { return ZoneHint }
func (s *testStore) IsAXFRAllowed() bool   { return false }
func (s *testStore) Update(*dns.Msg) error { return ErrNotImplemented }
func (s *testStore) NSECRecords(string) ([]dns.RR, error) {
	return nil, ErrUnsupportedCapability
}
func (s *testStore) String() string { return "TestStore()" }

// Answer with a single static A record for any query.
func staticAnswer(ip string) func(string, uint16) ([]dns.RR, error) {
	return func(name string, qtype uint16) ([]dns.RR, error) {
		rr, err := dns.NewRR(name + " 3600 IN A " + ip)
		if err != nil {
			return nil, err
		}
		return []dns.RR{rr}, nil
	}
}
