package cdns

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// AuthorityChain evaluates an ordered sequence of stores for one zone with
// first-match-wins semantics. Stores are consulted strictly in the order they
// were configured: the first store to answer (or fail) ends the evaluation,
// later stores are only reached when every store before them returned
// ErrNotHandled. This lets a cheap in-memory store placed first, typically a
// blocklist, veto expensive network-bound stores behind it.
//
// The sequence is fixed at construction and never reordered.
type AuthorityChain struct {
	id      string
	origin  string
	stores  []Authority
	metrics *ChainMetrics
}

type ChainMetrics struct {
	// Queries answered by some store in the chain.
	answered *expvar.Int
	// Queries no store had an opinion on.
	unhandled *expvar.Int
	// Queries terminated by a store failure.
	failed *expvar.Int
}

func NewChainMetrics(id string) *ChainMetrics {
	return &ChainMetrics{
		answered:  getVarInt("chain", id, "answered"),
		unhandled: getVarInt("chain", id, "unhandled"),
		failed:    getVarInt("chain", id, "failed"),
	}
}

// NewAuthorityChain returns a chain for the given zone origin. The store
// order given here is the dispatch priority.
func NewAuthorityChain(id, origin string, stores ...Authority) *AuthorityChain {
	return &AuthorityChain{
		id:      id,
		origin:  canonicalName(origin),
		stores:  stores,
		metrics: NewChainMetrics(id),
	}
}

// Origin returns the zone apex this chain serves.
func (c *AuthorityChain) Origin() string {
	return c.origin
}

// Lookup dispatches a query through the chain. It returns the answer of the
// first store that handles the query, ErrNotHandled if none does, or the
// error of the first store that fails. The caller decides how an unhandled
// query maps to a response code.
func (c *AuthorityChain) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	for _, store := range c.stores {
		rrs, err := store.Lookup(ctx, name, qtype)
		if errors.Is(err, ErrNotHandled) {
			continue
		}
		if err != nil {
			c.metrics.failed.Add(1)
			Log.WithField("id", c.id).WithField("store", store.String()).
				WithError(err).Debug("store failed, terminating chain")
			return nil, err
		}
		c.metrics.answered.Add(1)
		return rrs, nil
	}
	c.metrics.unhandled.Add(1)
	return nil, ErrNotHandled
}

func (c *AuthorityChain) String() string {
	var ss []string
	for _, store := range c.stores {
		ss = append(ss, store.String())
	}
	return fmt.Sprintf("Chain(%s;%s)", c.origin, strings.Join(ss, "->"))
}
