package cdns

import (
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ZoneSet holds the authority chains of a server keyed by zone origin and
// routes each query to the most specific zone covering the query name.
type ZoneSet struct {
	chains map[string]*AuthorityChain
}

func NewZoneSet(chains ...*AuthorityChain) (*ZoneSet, error) {
	z := &ZoneSet{chains: make(map[string]*AuthorityChain)}
	for _, chain := range chains {
		if _, ok := z.chains[chain.Origin()]; ok {
			return nil, errors.Errorf("duplicate zone '%s'", chain.Origin())
		}
		z.chains[chain.Origin()] = chain
	}
	return z, nil
}

// Match returns the chain of the zone with the longest origin that is a
// suffix of name, or false if no zone covers the name.
func (z *ZoneSet) Match(name string) (*AuthorityChain, bool) {
	name = canonicalName(name)
	var best *AuthorityChain
	bestLabels := -1
	for origin, chain := range z.chains {
		if !dns.IsSubDomain(origin, name) {
			continue
		}
		if n := dns.CountLabel(origin); n > bestLabels {
			best, bestLabels = chain, n
		}
	}
	return best, best != nil
}
