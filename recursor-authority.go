package cdns

import (
	"context"
	"net"

	"github.com/linkdata/recursive"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// RecursorAuthority answers queries by full recursion starting at the root
// servers, delegated to the linkdata/recursive resolver. Like the forwarder
// it is network-bound and belongs at the end of a chain.
type RecursorAuthority struct {
	id     string
	origin string
	rec    *recursive.Recursive
}

var _ Authority = &RecursorAuthority{}

func NewRecursorAuthority(id, origin string) *RecursorAuthority {
	return &RecursorAuthority{
		id:     id,
		origin: canonicalName(origin),
		rec:    recursive.New(&net.Dialer{}),
	}
}

func (a *RecursorAuthority) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	name = canonicalName(name)
	if !dns.IsSubDomain(a.origin, name) {
		return nil, ErrNotHandled
	}
	msg, srv, err := a.rec.DnsResolve(ctx, name, qtype)
	if err != nil {
		return nil, errors.Wrapf(err, "recursion for '%s' failed", name)
	}
	if msg == nil {
		return nil, errors.Errorf("recursion for '%s' returned no response", name)
	}
	Log.WithField("id", a.id).WithField("server", srv.String()).Debug("recursion complete")
	switch msg.Rcode {
	case dns.RcodeSuccess:
		return msg.Answer, nil
	case dns.RcodeNameError:
		return nil, ErrNotHandled
	default:
		return nil, errors.Errorf("recursion for '%s' returned %s", name, rcodeString(msg.Rcode))
	}
}

func (a *RecursorAuthority) Origin() string {
	return a.origin
}

func (a *RecursorAuthority) ZoneType() ZoneType {
	return ZoneHint
}

func (a *RecursorAuthority) IsAXFRAllowed() bool {
	return false
}

func (a *RecursorAuthority) Update(req *dns.Msg) error {
	return errors.Wrap(ErrNotImplemented, "dynamic update on recursor")
}

func (a *RecursorAuthority) NSECRecords(name string) ([]dns.RR, error) {
	return nil, errors.Wrap(ErrUnsupportedCapability, "nsec records on recursor")
}

func (a *RecursorAuthority) String() string {
	return a.id
}
