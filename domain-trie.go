package cdns

import (
	"strings"

	"github.com/miekg/dns"
)

// MatchOutcome is the result of matching a query name against a DomainTrie.
type MatchOutcome int

const (
	NotBlocked MatchOutcome = iota
	BlockedWildcard
	BlockedExact
)

func (o MatchOutcome) String() string {
	switch o {
	case BlockedExact:
		return "blocked-exact"
	case BlockedWildcard:
		return "blocked-wildcard"
	}
	return "not-blocked"
}

// MatchOptions control how wildcard entries are applied during a match.
type MatchOptions struct {
	// Wildcards enables *.suffix entries. When false, only exact entries are
	// considered.
	Wildcards bool

	// MinWildcardDepth is the number of labels nearest the TLD that can never
	// act as a wildcard suffix. With a value of 1, a (likely misconfigured)
	// *.com entry matches nothing since "com" alone is too close to the root.
	MinWildcardDepth int
}

// DomainTrie holds blocklist entries in a tree of domain labels ordered from
// the TLD down, so matching a query costs one map lookup per label regardless
// of the number of entries. Shared suffixes are stored once. Each node is
// owned by its parent; nodes hold no references back up the tree.
//
// The trie is not safe for concurrent modification. Build it fully, then
// share it read-only.
type DomainTrie struct {
	root *trieNode
	size int
}

type trieNode struct {
	children map[string]*trieNode
	exact    bool
	wildcard bool
}

func NewDomainTrie() *DomainTrie {
	return &DomainTrie{root: &trieNode{}}
}

// Insert adds a canonical name to the trie. For a wildcard entry, name is the
// suffix following the "*." tag and the terminal node of the suffix becomes
// the wildcard anchor; the anchor name itself is not covered by it. Inserting
// an entry that is already present is a no-op. Returns true if the entry was
// not present before.
func (t *DomainTrie) Insert(name string, wildcard bool) bool {
	labels := dns.SplitDomainName(canonicalName(name))
	if len(labels) == 0 {
		// A bare "*." entry would anchor a wildcard on the root and block
		// every name. Refuse it.
		return false
	}
	n := t.root
	for i := len(labels) - 1; i >= 0; i-- {
		child, ok := n.children[labels[i]]
		if !ok {
			if n.children == nil {
				n.children = make(map[string]*trieNode)
			}
			child = &trieNode{}
			n.children[labels[i]] = child
		}
		n = child
	}
	if wildcard {
		if n.wildcard {
			return false
		}
		n.wildcard = true
	} else {
		if n.exact {
			return false
		}
		n.exact = true
	}
	t.size++
	return true
}

// Match walks the trie along the query's labels from the TLD down and reports
// whether the name is blocked. An exact entry for the full name wins over any
// wildcard covering it. A wildcard anchor only covers names with at least one
// label below the anchor, and only if the anchor's suffix is longer than
// MinWildcardDepth labels.
func (t *DomainTrie) Match(name string, opt MatchOptions) MatchOutcome {
	labels := dns.SplitDomainName(canonicalName(name))
	n := t.root
	wildcard := false
	for i := len(labels) - 1; i >= 0; i-- {
		child, ok := n.children[labels[i]]
		if !ok {
			break
		}
		// Number of labels between the root and this node.
		depth := len(labels) - i
		if opt.Wildcards && child.wildcard && i > 0 && depth > opt.MinWildcardDepth {
			wildcard = true
		}
		if i == 0 && child.exact {
			return BlockedExact
		}
		n = child
	}
	if wildcard {
		return BlockedWildcard
	}
	return NotBlocked
}

// Len returns the number of distinct entries in the trie.
func (t *DomainTrie) Len() int {
	return t.size
}

// Normalize a name for the trie: lowercase and fully qualified.
func canonicalName(s string) string {
	return strings.ToLower(dns.Fqdn(strings.TrimSpace(s)))
}
