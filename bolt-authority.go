package cdns

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	bbolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// BoltAuthority serves zone records from a bbolt database. Unlike the
// file-backed store it accepts dynamic updates, which are applied directly
// to the database.
type BoltAuthority struct {
	id     string
	origin string
	axfr   bool
	db     *bbolt.DB
}

var _ Authority = &BoltAuthority{}

type BoltAuthorityOptions struct {
	// Zone apex served from the database.
	Origin string

	// Path of the database file, created if missing.
	File string

	// Permit zone transfers for this zone.
	AXFRAllowed bool
}

// NewBoltAuthority opens (or creates) the database and ensures the records
// bucket exists.
func NewBoltAuthority(id string, opt BoltAuthorityOptions) (*BoltAuthority, error) {
	db, err := bbolt.Open(opt.File, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open zone database for '%s'", id)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to initialize zone database for '%s'", id)
	}
	return &BoltAuthority{
		id:     id,
		origin: canonicalName(opt.Origin),
		axfr:   opt.AXFRAllowed,
		db:     db,
	}, nil
}

// Close the underlying database.
func (a *BoltAuthority) Close() error {
	return a.db.Close()
}

// Lookup reads the record set for the name and type from the database. Names
// outside the zone and names without records fall through with ErrNotHandled.
func (a *BoltAuthority) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	name = canonicalName(name)
	if !dns.IsSubDomain(a.origin, name) {
		return nil, ErrNotHandled
	}
	var rrs []dns.RR
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if qtype == dns.TypeANY {
			prefix := []byte(name + "|")
			c := b.Cursor()
			for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
				records, err := parseRecordValue(v)
				if err != nil {
					return err
				}
				rrs = append(rrs, records...)
			}
			return nil
		}
		v := b.Get(boltKey(name, qtype))
		if v == nil {
			return nil
		}
		records, err := parseRecordValue(v)
		if err != nil {
			return err
		}
		rrs = records
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "zone database read for '%s' failed", a.id)
	}
	if len(rrs) == 0 {
		return nil, ErrNotHandled
	}
	return rrs, nil
}

func (a *BoltAuthority) Origin() string {
	return a.origin
}

func (a *BoltAuthority) ZoneType() ZoneType {
	return ZonePrimary
}

func (a *BoltAuthority) IsAXFRAllowed() bool {
	return a.axfr
}

// Update applies a dynamic update request. Records in the update section with
// class INET are added, records with class ANY delete the record set of that
// name and type, and records with class NONE delete the one record with
// matching data from its set. The whole request is applied in one
// transaction.
func (a *BoltAuthority) Update(req *dns.Msg) error {
	if req == nil || len(req.Ns) == 0 {
		return errors.New("no records in update request")
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for _, rr := range req.Ns {
			hdr := rr.Header()
			name := canonicalName(hdr.Name)
			if !dns.IsSubDomain(a.origin, name) {
				return errors.Errorf("update record '%s' out of zone '%s'", name, a.origin)
			}
			key := boltKey(name, hdr.Rrtype)
			switch hdr.Class {
			case dns.ClassANY:
				if err := b.Delete(key); err != nil {
					return err
				}
			case dns.ClassNONE:
				existing := b.Get(key)
				if len(existing) == 0 {
					continue
				}
				kept, err := removeRecordLine(existing, rr)
				if err != nil {
					return err
				}
				if len(kept) == 0 {
					if err := b.Delete(key); err != nil {
						return err
					}
				} else if err := b.Put(key, kept); err != nil {
					return err
				}
			case dns.ClassINET:
				line := rr.String()
				if existing := b.Get(key); len(existing) > 0 {
					if hasRecordLine(existing, line) {
						continue
					}
					line = string(existing) + "\n" + line
				}
				if err := b.Put(key, []byte(line)); err != nil {
					return err
				}
			default:
				return errors.Errorf("unsupported update class %d", hdr.Class)
			}
		}
		return nil
	})
}

// Add stores a single record, mostly a convenience for seeding zones.
func (a *BoltAuthority) Add(rr dns.RR) error {
	req := new(dns.Msg)
	req.Ns = []dns.RR{rr}
	return a.Update(req)
}

func (a *BoltAuthority) NSECRecords(name string) ([]dns.RR, error) {
	return nil, errors.Wrap(ErrUnsupportedCapability, "zone is not signed")
}

func (a *BoltAuthority) String() string {
	return a.id
}

func boltKey(name string, qtype uint16) []byte {
	return []byte(name + "|" + strconv.Itoa(int(qtype)))
}

// Record sets are stored in presentation format, one record per line.
func parseRecordValue(v []byte) ([]dns.RR, error) {
	var rrs []dns.RR
	for _, line := range strings.Split(string(v), "\n") {
		if line == "" {
			continue
		}
		rr, err := dns.NewRR(line)
		if err != nil {
			return nil, err
		}
		rrs = append(rrs, rr)
	}
	return rrs, nil
}

// Remove the stored record whose data matches rr. Class and TTL are left out
// of the comparison since delete requests carry class NONE and TTL 0.
func removeRecordLine(v []byte, rr dns.RR) ([]byte, error) {
	target := rdataString(rr)
	var kept []string
	for _, line := range strings.Split(string(v), "\n") {
		if line == "" {
			continue
		}
		stored, err := dns.NewRR(line)
		if err != nil {
			return nil, err
		}
		if rdataString(stored) == target {
			continue
		}
		kept = append(kept, line)
	}
	return []byte(strings.Join(kept, "\n")), nil
}

// The presentation format of a record without its header.
func rdataString(rr dns.RR) string {
	return strings.TrimPrefix(rr.String(), rr.Header().String())
}

func hasRecordLine(v []byte, line string) bool {
	for _, l := range strings.Split(string(v), "\n") {
		if l == line {
			return true
		}
	}
	return false
}
