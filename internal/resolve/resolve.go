// Package resolve wraps github.com/miekg/dns in the small, bounded
// lookup surface pykuang's generator and XFR facilities need: PTR
// resolution, NS enumeration, and plain A/AAAA lookups. Unlike a
// recursive resolver that walks the root hints itself, this one simply
// asks the system's configured resolvers and gives up within a fixed
// timeout — generator workers each own one of these so they never
// contend on shared resolver state.
package resolve

import (
	"fmt"
	"log"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"

	"github.com/krylon/pykuang/pkg/applog"
)

// lookups collapses concurrent identical queries (e.g. several XFR
// workers resolving the same shared nameserver hostname at once) into
// a single wire exchange, shared across every Resolver in the process.
var lookups singleflight.Group

// Timeout bounds every query issued through a Resolver, per spec.md
// §4.4/§4.7: 2.5 seconds for both dial and read.
const Timeout = 2500 * time.Millisecond

// resolvConfPath is where the system's nameservers are read from.
// Overridable in tests.
var resolvConfPath = "/etc/resolv.conf"

// Resolver issues bounded DNS queries against a fixed set of upstream
// servers, retrying the next server in the list on failure.
type Resolver struct {
	servers []string
	client  *dns.Client
	log     *log.Logger
}

// New creates a Resolver using servers, each in "host:port" form. If
// servers is empty, the system's /etc/resolv.conf is consulted; if that
// also yields nothing, it falls back to a small set of public
// resolvers.
func New(servers []string) *Resolver {
	if len(servers) == 0 {
		servers = systemServers()
	}
	return &Resolver{
		servers: servers,
		client:  &dns.Client{Timeout: Timeout},
		log:     applog.Get("resolve"),
	}
}

func systemServers() []string {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(cfg.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	out := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, s+":"+cfgPort(cfg))
	}
	return out
}

func cfgPort(cfg *dns.ClientConfig) string {
	if cfg.Port == "" {
		return "53"
	}
	return cfg.Port
}

// exchange tries each configured server in turn, returning the first
// non-transport-error response. absent is true for the classes of
// failure the spec treats as "no answer" rather than a hard error:
// NXDOMAIN, NOERROR-with-empty-answer, timeout, and no reachable
// nameserver.
func (r *Resolver) exchange(msg *dns.Msg) (resp *dns.Msg, absent bool) {
	var lastErr error
	for _, srv := range r.servers {
		reply, _, err := r.client.Exchange(msg, srv)
		if err != nil {
			lastErr = err
			continue
		}
		switch reply.Rcode {
		case dns.RcodeSuccess:
			return reply, false
		case dns.RcodeNameError:
			return nil, true
		default:
			lastErr = fmt.Errorf("rcode %s", dns.RcodeToString[reply.Rcode])
			continue
		}
	}
	if lastErr != nil {
		r.log.Printf("query %s failed against all servers: %s", msg.Question[0].Name, lastErr)
	}
	return nil, true
}

// LookupPTR resolves the reverse-DNS name for addr. ok is false for
// NXDOMAIN, an empty answer, a timeout, or an unreachable resolver — all
// treated identically per spec.md §4.4.
func (r *Resolver) LookupPTR(addr netip.Addr) (name string, ok bool) {
	rev, err := dns.ReverseAddr(addr.String())
	if err != nil {
		r.log.Printf("cannot build reverse name for %s: %s", addr, err)
		return "", false
	}

	type result struct {
		name string
		ok   bool
	}
	v, _, _ := lookups.Do("PTR:"+rev, func() (any, error) {
		msg := new(dns.Msg)
		msg.SetQuestion(rev, dns.TypePTR)
		msg.RecursionDesired = true

		reply, absent := r.exchange(msg)
		if absent || reply == nil || len(reply.Answer) == 0 {
			return result{}, nil
		}
		for _, rr := range reply.Answer {
			if ptr, isPTR := rr.(*dns.PTR); isPTR {
				return result{name: strings.TrimSuffix(ptr.Ptr, "."), ok: true}, nil
			}
		}
		return result{}, nil
	})
	res := v.(result)
	return res.name, res.ok
}

// LookupNS returns the nameserver names for zone.
func (r *Resolver) LookupNS(zone string) (names []string, ok bool) {
	fqdn := dns.Fqdn(zone)
	type result struct {
		names []string
		ok    bool
	}
	v, _, _ := lookups.Do("NS:"+fqdn, func() (any, error) {
		msg := new(dns.Msg)
		msg.SetQuestion(fqdn, dns.TypeNS)
		msg.RecursionDesired = true

		reply, absent := r.exchange(msg)
		if absent || reply == nil {
			return result{}, nil
		}
		var out []string
		for _, rr := range reply.Answer {
			if ns, isNS := rr.(*dns.NS); isNS {
				out = append(out, strings.TrimSuffix(ns.Ns, "."))
			}
		}
		return result{names: out, ok: len(out) > 0}, nil
	})
	res := v.(result)
	return res.names, res.ok
}

// LookupHost returns the first A or AAAA address for name.
func (r *Resolver) LookupHost(name string) (addr netip.Addr, ok bool) {
	fqdn := dns.Fqdn(name)
	type result struct {
		addr netip.Addr
		ok   bool
	}
	v, _, _ := lookups.Do("A:"+fqdn, func() (any, error) {
		for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
			msg := new(dns.Msg)
			msg.SetQuestion(fqdn, qtype)
			msg.RecursionDesired = true

			reply, absent := r.exchange(msg)
			if absent || reply == nil {
				continue
			}
			for _, rr := range reply.Answer {
				switch rec := rr.(type) {
				case *dns.A:
					if a, ok := netip.AddrFromSlice(rec.A.To4()); ok {
						return result{addr: a, ok: true}, nil
					}
				case *dns.AAAA:
					if a, ok := netip.AddrFromSlice(rec.AAAA.To16()); ok {
						return result{addr: a, ok: true}, nil
					}
				}
			}
		}
		return result{}, nil
	})
	res := v.(result)
	return res.addr, res.ok
}
