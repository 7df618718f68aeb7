package cdns

import (
	"context"
	"expvar"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ForwardAuthority passes queries on to a fixed upstream server over UDP or
// TCP. Upstream network failures terminate the chain for the query; an
// upstream NXDOMAIN is treated as a fallthrough so a later store may still
// answer. Answers with records are cached for their TTL.
type ForwardAuthority struct {
	id       string
	origin   string
	endpoint string
	client   *dns.Client
	tcp      *dns.Client
	cache    *lru.Cache[recordKey, forwardCacheEntry]
	metrics  *ForwardMetrics
}

type forwardCacheEntry struct {
	rrs     []dns.RR
	expires time.Time
}

var _ Authority = &ForwardAuthority{}

type ForwardAuthorityOptions struct {
	// Zone this forwarder answers for, "." to forward everything.
	Origin string

	// "udp" or "tcp". Defaults to "udp"; truncated UDP responses are retried
	// over TCP.
	Network string

	// Per-query upstream timeout. Defaults to 5s.
	Timeout time.Duration

	// Number of answers kept in the response cache. Disabled if 0.
	CacheSize int
}

type ForwardMetrics struct {
	// Queries sent upstream.
	query *expvar.Int
	// Answers served from cache.
	cached *expvar.Int
	// Failed upstream exchanges.
	err *expvar.Int
}

func NewForwardMetrics(id string) *ForwardMetrics {
	return &ForwardMetrics{
		query:  getVarInt("forward", id, "query"),
		cached: getVarInt("forward", id, "cached"),
		err:    getVarInt("forward", id, "error"),
	}
}

// NewForwardAuthority returns a forwarding store sending queries to the given
// endpoint ("host:port").
func NewForwardAuthority(id, endpoint string, opt ForwardAuthorityOptions) (*ForwardAuthority, error) {
	network := opt.Network
	if network == "" {
		network = "udp"
	}
	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	a := &ForwardAuthority{
		id:       id,
		origin:   canonicalName(opt.Origin),
		endpoint: endpoint,
		client:   &dns.Client{Net: network, Timeout: timeout},
		tcp:      &dns.Client{Net: "tcp", Timeout: timeout},
		metrics:  NewForwardMetrics(id),
	}
	if opt.CacheSize > 0 {
		cache, err := lru.New[recordKey, forwardCacheEntry](opt.CacheSize)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build cache for '%s'", id)
		}
		a.cache = cache
	}
	return a, nil
}

// Lookup sends the query upstream, retrying over TCP when the response comes
// back truncated.
func (a *ForwardAuthority) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	name = canonicalName(name)
	if !dns.IsSubDomain(a.origin, name) {
		return nil, ErrNotHandled
	}
	key := recordKey{name, qtype}
	if a.cache != nil {
		if entry, ok := a.cache.Get(key); ok {
			if time.Now().Before(entry.expires) {
				a.metrics.cached.Add(1)
				return copyRecords(entry.rrs), nil
			}
			a.cache.Remove(key)
		}
	}

	q := new(dns.Msg)
	q.SetQuestion(name, qtype)
	q.RecursionDesired = true

	a.metrics.query.Add(1)
	r, _, err := a.client.ExchangeContext(ctx, q, a.endpoint)
	if err == nil && r.Truncated && a.client.Net == "udp" {
		r, _, err = a.tcp.ExchangeContext(ctx, q, a.endpoint)
	}
	if err != nil {
		a.metrics.err.Add(1)
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, QueryTimeoutError{name}
		}
		return nil, errors.Wrapf(err, "upstream query to %s failed", a.endpoint)
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
		if a.cache != nil && len(r.Answer) > 0 {
			a.cache.Add(key, forwardCacheEntry{
				rrs:     copyRecords(r.Answer),
				expires: time.Now().Add(minTTL(r.Answer)),
			})
		}
		return r.Answer, nil
	case dns.RcodeNameError:
		return nil, ErrNotHandled
	default:
		a.metrics.err.Add(1)
		return nil, errors.Errorf("upstream %s returned %s", a.endpoint, rcodeString(r.Rcode))
	}
}

func (a *ForwardAuthority) Origin() string {
	return a.origin
}

func (a *ForwardAuthority) ZoneType() ZoneType {
	return ZoneForward
}

func (a *ForwardAuthority) IsAXFRAllowed() bool {
	return false
}

func (a *ForwardAuthority) Update(req *dns.Msg) error {
	return errors.Wrap(ErrNotImplemented, "dynamic update on forwarder")
}

func (a *ForwardAuthority) NSECRecords(name string) ([]dns.RR, error) {
	return nil, errors.Wrap(ErrUnsupportedCapability, "nsec records on forwarder")
}

func (a *ForwardAuthority) String() string {
	return a.id
}

func copyRecords(rrs []dns.RR) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, dns.Copy(rr))
	}
	return out
}

func minTTL(rrs []dns.RR) time.Duration {
	ttl := ^uint32(0)
	for _, rr := range rrs {
		if t := rr.Header().Ttl; t < ttl {
			ttl = t
		}
	}
	return time.Duration(ttl) * time.Second
}
