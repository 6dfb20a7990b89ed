// Package blacklist implements the two frequency-sorted matchers pykuang
// consults before accepting a freshly generated address or resolved
// hostname: a CIDR-range blacklist for addresses and a regex blacklist
// for names. Both lists re-sort themselves, descending by hit count,
// after every successful match so that frequently-hit entries are
// checked first on the next call.
package blacklist

import (
	"fmt"
	"log"
	"net/netip"
	"regexp"
	"sort"
	"sync"
)

// DefaultNetworks are the IANA-reserved blocks pykuang always rejects,
// transcribed from the original Python project's blacklist.py.
var DefaultNetworks = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"255.0.0.0/8",
}

// DefaultNames is the corpus of case-insensitive regex fragments pykuang
// matches reverse-DNS names against: reserved TLDs, dynamic-ISP naming
// conventions, and known placeholder/noise patterns. Transcribed
// verbatim from the original Python project's blacklist.py.
var DefaultNames = []string{
	`\bdiu?p-?\d*\.`,
	`(?:versanet|telekom|uni-paderborn|upb)\.(?:de|net|com|biz|eu)\.?$`,
	`[.]?nothing[.]`,
	`[.]example[.](?:org|net|com)[.]?$`,
	`[avs]?dsl`,
	`\.in-addr\.`,
	`\.invalid\.?`,
	`\b(?:wireless|wlan|wimax|wan|vpn|vlan)`,
	`\b\d{1,3}.\d{1,3}.\d{1,3}.\d{1,3}\b`,
	`\bincorrect(?:ly)?\b`,
	`\bnot.configured\b`,
	`\bpools?\b`,
	`\bunn?ass?igned\b`,
	`^(?:client|host)(?:-?\d+)?`,
	`^(?:un|not-)(?:known|ass?igned|alloc(?:ated)?|registered|provisioned|used|defined|delegated)`,
	`^[.]$`,
	`^[*]`,
	`^\w*eth(?:ernet)[^.]*\.`,
	`^\w\d+\[\-.]`,
	`^customer-`,
	`^customer\.`,
	`^dyn\d+`,
	`^generic-?host`,
	`^h\d+s\d+`,
	`^host\d+\.`,
	`^illegal`,
	`^internal-host`,
	`^ip(?:-?\d+|addr)`,
	`^mobile`,
	`^no(?:-reverse)?-dns`,
	`^(?:no-?)?reverse`,
	`^no.ptr`,
	`^softbank\d+\.bbtec`,
	`^this.ip`,
	`^user-?\d+\.`,
	`aol\.com\.?$`,
	`cable`,
	`dhcp`,
	`dial-?(?:in|up)?`,
	`dyn(?:amic)?[-.0-9]`,
	`dyn(?:amic)ip`,
	`early.registration`,
	`(?:edu)?roam`,
	`localhost`,
	`myvzw\.com`,
	`no-dns(?:-yet)?`,
	`non-routed`,
	`ppp`,
	`rr\.com\.?$`,
	`umts`,
	`wanadoo\.[a-z]{2,3}\.?$`,
	`^\w*[.]$`,
	`reverse-not-set`,
	`uu[.]net[.]?$`,
	`(?:ne|ad)[.]jp[.]?$`,
	`[.](?:cn|mil)[.]?$`,
	`^noname[.]`,
}

// IsWellKnownBlocked reports whether addr falls into one of the
// address classes callers must always treat as blacklisted regardless of
// what's in an IPBlacklist: multicast, private, loopback, link-local, or
// otherwise globally unroutable ("reserved").
func IsWellKnownBlocked(addr netip.Addr) bool {
	return addr.IsMulticast() ||
		addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		!addr.IsGlobalUnicast()
}

type ipItem struct {
	net     netip.Prefix
	hitCnt  int
}

// IPBlacklist matches addresses against a frequency-sorted list of CIDR
// ranges.
type IPBlacklist struct {
	mu    sync.Mutex
	items []*ipItem
}

// NewIPBlacklist builds an IPBlacklist from a list of CIDR strings.
func NewIPBlacklist(cidrs []string) (*IPBlacklist, error) {
	bl := &IPBlacklist{items: make([]*ipItem, 0, len(cidrs))}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("blacklist: invalid CIDR %q: %w", c, err)
		}
		bl.items = append(bl.items, &ipItem{net: p})
	}
	return bl, nil
}

// DefaultIPBlacklist returns an IPBlacklist seeded with DefaultNetworks.
func DefaultIPBlacklist() *IPBlacklist {
	bl, err := NewIPBlacklist(DefaultNetworks)
	if err != nil {
		// DefaultNetworks is a compile-time constant; a parse failure
		// here means the corpus itself is broken.
		log.Fatalf("blacklist: default network corpus is invalid: %s", err)
	}
	return bl
}

// Match reports whether addr falls within any blacklisted network. On a
// hit, the matching item's counter is incremented and the list is
// re-sorted descending by hit count.
func (bl *IPBlacklist) Match(addr netip.Addr) bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	for _, it := range bl.items {
		if it.net.Contains(addr) {
			it.hitCnt++
			sort.SliceStable(bl.items, func(i, j int) bool {
				return bl.items[i].hitCnt > bl.items[j].hitCnt
			})
			return true
		}
	}
	return false
}

type nameItem struct {
	pat    *regexp.Regexp
	hitCnt int
}

// NameBlacklist matches hostnames against a frequency-sorted list of
// case-insensitive regular expressions, searched (not anchored) against
// the lowercased name.
type NameBlacklist struct {
	mu    sync.Mutex
	items []*nameItem
}

// NewNameBlacklist compiles a NameBlacklist from a list of regex
// fragments. Each pattern is compiled case-insensitively.
func NewNameBlacklist(patterns []string) (*NameBlacklist, error) {
	bl := &NameBlacklist{items: make([]*nameItem, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("blacklist: invalid pattern %q: %w", p, err)
		}
		bl.items = append(bl.items, &nameItem{pat: re})
	}
	return bl, nil
}

// DefaultNameBlacklist returns a NameBlacklist seeded with DefaultNames.
func DefaultNameBlacklist() *NameBlacklist {
	bl, err := NewNameBlacklist(DefaultNames)
	if err != nil {
		log.Fatalf("blacklist: default name corpus is invalid: %s", err)
	}
	return bl
}

// Match reports whether name is matched by any pattern in the list. On a
// hit, the matching item's counter is incremented and the list is
// re-sorted descending by hit count.
func (bl *NameBlacklist) Match(name string) bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	for _, it := range bl.items {
		if it.pat.FindStringIndex(name) != nil {
			it.hitCnt++
			sort.SliceStable(bl.items, func(i, j int) bool {
				return bl.items[i].hitCnt > bl.items[j].hitCnt
			})
			return true
		}
	}
	return false
}
