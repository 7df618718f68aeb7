package cdns

import (
	"context"
	"os"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// FileAuthority serves a zone loaded from a master file. The file is parsed
// once at construction; the record set is read-only afterwards.
type FileAuthority struct {
	id      string
	origin  string
	axfr    bool
	records map[recordKey][]dns.RR
}

type recordKey struct {
	name  string
	qtype uint16
}

var _ Authority = &FileAuthority{}

type FileAuthorityOptions struct {
	// Zone apex served from the file, e.g. "example.com."
	Origin string

	// Path of the zone file in master format.
	File string

	// Permit zone transfers for this zone.
	AXFRAllowed bool
}

// NewFileAuthority parses the configured zone file. An unreadable or invalid
// file is fatal.
func NewFileAuthority(id string, opt FileAuthorityOptions) (*FileAuthority, error) {
	f, err := os.Open(opt.File)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open zone file for '%s'", id)
	}
	defer f.Close()

	a := &FileAuthority{
		id:      id,
		origin:  canonicalName(opt.Origin),
		axfr:    opt.AXFRAllowed,
		records: make(map[recordKey][]dns.RR),
	}
	zp := dns.NewZoneParser(f, a.origin, opt.File)
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		key := recordKey{canonicalName(rr.Header().Name), rr.Header().Rrtype}
		a.records[key] = append(a.records[key], rr)
	}
	if err := zp.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to parse zone file for '%s'", id)
	}
	return a, nil
}

// Lookup returns the records for the name and type, following a CNAME at the
// name if present. Names outside the zone and names without records fall
// through with ErrNotHandled.
func (a *FileAuthority) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	name = canonicalName(name)
	if !dns.IsSubDomain(a.origin, name) {
		return nil, ErrNotHandled
	}
	if qtype == dns.TypeANY {
		var rrs []dns.RR
		for key, records := range a.records {
			if key.name == name {
				rrs = append(rrs, records...)
			}
		}
		if len(rrs) > 0 {
			return rrs, nil
		}
		return nil, ErrNotHandled
	}
	if rrs := a.records[recordKey{name, qtype}]; len(rrs) > 0 {
		return rrs, nil
	}
	if qtype != dns.TypeCNAME {
		if rrs := a.records[recordKey{name, dns.TypeCNAME}]; len(rrs) > 0 {
			return rrs, nil
		}
	}
	return nil, ErrNotHandled
}

func (a *FileAuthority) Origin() string {
	return a.origin
}

func (a *FileAuthority) ZoneType() ZoneType {
	return ZonePrimary
}

func (a *FileAuthority) IsAXFRAllowed() bool {
	return a.axfr
}

func (a *FileAuthority) Update(req *dns.Msg) error {
	return errors.Wrap(ErrNotImplemented, "dynamic update on file zone")
}

func (a *FileAuthority) NSECRecords(name string) ([]dns.RR, error) {
	return nil, errors.Wrap(ErrUnsupportedCapability, "zone is not signed")
}

func (a *FileAuthority) String() string {
	return a.id
}
