package cdns

import (
	"context"
	"expvar"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BlocklistAuthority is a chain store that answers queries for listed names
// with a synthetic sinkhole response and returns ErrNotHandled for everything
// else. The typical use is to place it first in a chain, ahead of a forwarder
// or recursor:
//
//	[[zones]]
//	origin = "."
//	stores = [
//	  { type = "blocklist", lists = ["bl.txt", "bl2.txt"] },
//	  { type = "forward", address = "8.8.8.8:53" },
//	]
//
// A miss is never a failure; this store only ever answers or falls through.
type BlocklistAuthority struct {
	id     string
	origin string
	opt    BlocklistAuthorityOptions

	mu   sync.RWMutex
	trie *DomainTrie

	// Serializes rebuilds so the timer and the file watcher never run the
	// loaders concurrently; loaders are not required to be safe for
	// concurrent use.
	rebuildMu sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	loaders  []BlocklistLoader
	sinkhole *Sinkhole
	metrics  *BlocklistMetrics
}

var _ Authority = &BlocklistAuthority{}

type BlocklistAuthorityOptions struct {
	// WildcardMatch enables *.suffix list entries. When false such entries
	// are still loaded but never considered during a match.
	WildcardMatch bool

	// MinWildcardDepth is the number of labels nearest the TLD that may not
	// serve as a wildcard suffix, guarding against entries like *.com taking
	// out a whole TLD.
	MinWildcardDepth int

	// Refresh period for the lists. Disabled if 0.
	Refresh time.Duration

	// Watch rebuilds the matcher whenever one of the list files changes on
	// disk. Only applies to file-backed loaders.
	Watch bool

	// Policy selects the shape of the synthetic answer, see SinkholePolicy.
	Policy SinkholePolicy

	// Address returned for blocked names. Defaults to 0.0.0.0.
	SinkholeAddr net.IP

	// TTL on synthetic records. Defaults to 1h.
	SinkholeTTL uint32
}

type BlocklistMetrics struct {
	// Blocked queries count.
	blocked *expvar.Int
	// Queries passed through to the next store.
	missed *expvar.Int
	// Number of distinct entries currently loaded.
	entries *expvar.Int
}

func NewBlocklistMetrics(id string) *BlocklistMetrics {
	return &BlocklistMetrics{
		blocked: getVarInt("blocklist", id, "blocked"),
		missed:  getVarInt("blocklist", id, "missed"),
		entries: getVarInt("blocklist", id, "entries"),
	}
}

// NewBlocklistAuthority builds a blocklist store from the given loaders. A
// loader failure is fatal: an operator relying on a blocklist should not have
// the server silently start without it. Malformed individual entries are
// skipped with a diagnostic.
func NewBlocklistAuthority(id, origin string, loaders []BlocklistLoader, opt BlocklistAuthorityOptions) (*BlocklistAuthority, error) {
	a := &BlocklistAuthority{
		id:       id,
		origin:   canonicalName(origin),
		opt:      opt,
		done:     make(chan struct{}),
		loaders:  loaders,
		sinkhole: NewSinkhole(opt.Policy, opt.SinkholeAddr, opt.SinkholeTTL),
		metrics:  NewBlocklistMetrics(id),
	}
	trie, err := a.buildTrie()
	if err != nil {
		return nil, err
	}
	a.trie = trie
	a.metrics.entries.Set(int64(trie.Len()))

	if opt.Refresh > 0 {
		go a.refreshLoop(opt.Refresh)
	}
	if opt.Watch {
		go a.watchLoop()
	}
	return a, nil
}

// Lookup checks the query name against the matcher. Blocked names get a
// synthetic answer built by the sinkhole policy, everything else falls
// through with ErrNotHandled.
func (a *BlocklistAuthority) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	a.mu.RLock()
	trie := a.trie
	a.mu.RUnlock()

	outcome := trie.Match(name, MatchOptions{
		Wildcards:        a.opt.WildcardMatch,
		MinWildcardDepth: a.opt.MinWildcardDepth,
	})
	if outcome == NotBlocked {
		a.metrics.missed.Add(1)
		return nil, ErrNotHandled
	}
	a.metrics.blocked.Add(1)
	Log.WithFields(logrus.Fields{
		"id":    a.id,
		"qname": name,
		"match": outcome.String(),
	}).Info("query blocked by blocklist")
	return a.sinkhole.Records(name, qtype), nil
}

func (a *BlocklistAuthority) Origin() string {
	return a.origin
}

// Blocklists hold no zone data of their own.
func (a *BlocklistAuthority) ZoneType() ZoneType {
	return ZoneHint
}

func (a *BlocklistAuthority) IsAXFRAllowed() bool {
	return false
}

func (a *BlocklistAuthority) Update(req *dns.Msg) error {
	return errors.Wrap(ErrNotImplemented, "dynamic update on blocklist")
}

func (a *BlocklistAuthority) NSECRecords(name string) ([]dns.RR, error) {
	return nil, errors.Wrap(ErrUnsupportedCapability, "nsec records on blocklist")
}

func (a *BlocklistAuthority) String() string {
	return a.id
}

// Close stops the refresh and watch goroutines. The store keeps serving its
// current ruleset afterwards. Safe to call more than once.
func (a *BlocklistAuthority) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	return nil
}

// Build a fresh matcher from all loaders. Returns an error if any loader
// fails outright; individual bad entries are only logged.
func (a *BlocklistAuthority) buildTrie() (*DomainTrie, error) {
	log := Log.WithField("id", a.id)
	trie := NewDomainTrie()
	for _, loader := range a.loaders {
		rules, err := loader.Load()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load blocklist for '%s'", a.id)
		}
		var inserted int
		for _, rule := range rules {
			name, wildcard, ok := parseListEntry(rule)
			if !ok {
				log.WithField("entry", rule).Warn("skipping malformed blocklist entry")
				continue
			}
			if name == "" {
				continue
			}
			if trie.Insert(name, wildcard) {
				inserted++
			}
		}
		log.WithFields(logrus.Fields{
			"loader":   loader.String(),
			"inserted": inserted,
		}).Debug("loaded blocklist")
	}
	return trie, nil
}

// Parse one list line. Blank lines parse to an empty name, which callers skip
// quietly. An entry is malformed if a wildcard appears anywhere other than as
// a leading "*." tag.
func parseListEntry(line string) (name string, wildcard bool, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, true
	}
	if strings.HasPrefix(line, "*.") {
		wildcard = true
		line = line[2:]
		if line == "" || line == "." {
			return "", false, false
		}
	}
	if strings.Contains(line, "*") {
		return "", false, false
	}
	return canonicalName(line), wildcard, true
}

// Replace the matcher with a freshly built one. The new trie is built off to
// the side and published in one swap; concurrent lookups either see the old
// snapshot or the new one, never a partial state. A failed rebuild keeps the
// previous matcher serving.
func (a *BlocklistAuthority) rebuild() {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	log := Log.WithField("id", a.id)
	log.Debug("reloading blocklist")
	trie, err := a.buildTrie()
	if err != nil {
		log.WithError(err).Error("failed to reload blocklist, keeping previous ruleset")
		return
	}
	a.mu.Lock()
	a.trie = trie
	a.mu.Unlock()
	a.metrics.entries.Set(int64(trie.Len()))
}

func (a *BlocklistAuthority) refreshLoop(refresh time.Duration) {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.rebuild()
		}
	}
}

// Rebuild the matcher when one of the list files changes. Loaders that aren't
// file-backed don't participate.
func (a *BlocklistAuthority) watchLoop() {
	log := Log.WithField("id", a.id)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Error("failed to start blocklist watcher")
		return
	}
	defer watcher.Close()

	var watched int
	for _, loader := range a.loaders {
		fl, ok := loader.(interface{ Path() string })
		if !ok {
			continue
		}
		if err := watcher.Add(fl.Path()); err != nil {
			log.WithError(err).WithField("file", fl.Path()).Error("failed to watch blocklist file")
			continue
		}
		watched++
	}
	if watched == 0 {
		return
	}

	for {
		select {
		case <-a.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				log.WithField("file", ev.Name).Debug("blocklist file changed")
				a.rebuild()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Error("blocklist watcher error")
		}
	}
}
