package cdns

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// ZoneType describes the role a store plays for its zone.
type ZoneType int

const (
	// ZonePrimary stores hold the authoritative copy of a zone's records.
	ZonePrimary ZoneType = iota

	// ZoneSecondary stores hold a replica of a zone maintained elsewhere.
	ZoneSecondary

	// ZoneHint stores don't serve zone data of their own. Blocklists and
	// recursors fall in this category.
	ZoneHint

	// ZoneForward stores pass queries on to an upstream server.
	ZoneForward
)

func (t ZoneType) String() string {
	switch t {
	case ZonePrimary:
		return "primary"
	case ZoneSecondary:
		return "secondary"
	case ZoneHint:
		return "hint"
	case ZoneForward:
		return "forward"
	}
	return "unknown"
}

// Authority is the capability interface implemented by every store that can
// be placed in a zone's chain. Lookup is the only method involved in query
// dispatch, the rest describe fixed properties of the store.
//
// Lookup returns the records answering the query, or ErrNotHandled if the
// store has no opinion on the name. ErrNotHandled is the normal fallthrough
// signal and not a failure; any other error terminates chain evaluation for
// the query. An empty (but nil-error) record set is a valid answer and
// results in a NODATA response.
type Authority interface {
	Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error)

	// Origin returns the apex of the zone this store serves, e.g. "example.com."
	// for www.example.com. Stores serving everything return the root zone ".".
	Origin() string

	ZoneType() ZoneType

	// IsAXFRAllowed reports whether this store permits zone transfers.
	IsAXFRAllowed() bool

	// Update applies a dynamic update request to the store. Stores that don't
	// support updates return an error wrapping ErrNotImplemented.
	Update(req *dns.Msg) error

	// NSECRecords returns the NSEC records proving non-existence of a name.
	// Stores without DNSSEC data return an error wrapping
	// ErrUnsupportedCapability, not ErrNotHandled, since the absence of NSEC
	// support is a property of the store rather than a data miss.
	NSECRecords(name string) ([]dns.RR, error)

	fmt.Stringer
}
