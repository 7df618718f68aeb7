package cdns

import (
	"net"

	"github.com/miekg/dns"
)

// SinkholePolicy selects the shape of the synthetic answer returned for a
// blocked name.
type SinkholePolicy int

const (
	// SinkholeNullAddress answers every query type with a single A record
	// pointing at the null address. Simple and unambiguous, but produces an
	// A record even for AAAA/MX/TXT queries.
	SinkholeNullAddress SinkholePolicy = iota

	// SinkholeNoData answers A and ANY queries with a null A record and
	// everything else with an empty answer (NODATA).
	SinkholeNoData
)

const defaultSinkholeTTL = 3600

// Sinkhole builds the synthetic answers served for blocked names.
type Sinkhole struct {
	policy SinkholePolicy
	addr   net.IP
	ttl    uint32
}

// NewSinkhole returns a response builder for the given policy. A zero addr
// defaults to 0.0.0.0, a zero ttl to 1h.
func NewSinkhole(policy SinkholePolicy, addr net.IP, ttl uint32) *Sinkhole {
	// Only v4 sinkhole addresses are meaningful for the A records built here.
	if addr = addr.To4(); addr == nil {
		addr = net.IPv4zero.To4()
	}
	if ttl == 0 {
		ttl = defaultSinkholeTTL
	}
	return &Sinkhole{policy: policy, addr: addr, ttl: ttl}
}

// Records returns the answer section for a blocked query. The returned slice
// may be empty (NODATA) depending on the policy and query type.
func (s *Sinkhole) Records(name string, qtype uint16) []dns.RR {
	if s.policy == SinkholeNoData && qtype != dns.TypeA && qtype != dns.TypeANY {
		return []dns.RR{}
	}
	return []dns.RR{&dns.A{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(name),
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    s.ttl,
		},
		A: s.addr,
	}}
}
