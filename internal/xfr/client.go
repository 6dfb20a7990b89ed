// Package xfr performs and schedules DNS zone transfers (AXFR): given a
// zone name, find its nameservers, pull the zone, and turn the A/AAAA
// records it contains into Hosts.
package xfr

import (
	"log"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/krylon/pykuang/internal/blacklist"
	"github.com/krylon/pykuang/internal/model"
	"github.com/krylon/pykuang/internal/resolve"
	"github.com/krylon/pykuang/internal/store"
	"github.com/krylon/pykuang/pkg/applog"
)

// transferTimeout bounds a single AXFR attempt against one nameserver.
const transferTimeout = 2500 * time.Millisecond

// Client resolves a zone's nameservers and pulls its records via AXFR,
// filtering discovered hosts through the blacklists before handing them
// to the store.
type Client struct {
	db     *store.Store
	res    *resolve.Resolver
	blName *blacklist.NameBlacklist
	blAddr *blacklist.IPBlacklist
	log    *log.Logger
}

// NewClient creates a Client persisting discovered hosts to db.
func NewClient(db *store.Store) *Client {
	return &Client{
		db:     db,
		res:    resolve.New(nil),
		blName: blacklist.DefaultNameBlacklist(),
		blAddr: blacklist.DefaultIPBlacklist(),
		log:    applog.Get("xfr"),
	}
}

// attemptXFR pulls zone from the nameserver at nsAddr (host:port form)
// and inserts a Host for every A/AAAA record whose name and address
// clear the blacklists. Records are not filtered by node: A/AAAA records
// at the zone apex and glue records under delegations become Hosts too.
// MX and NS records are logged but not followed — an explicit non-goal
// for v1.
func (c *Client) attemptXFR(zone, nsAddr string) bool {
	msg := new(dns.Msg)
	msg.SetAxfr(dns.Fqdn(zone))

	tr := &dns.Transfer{DialTimeout: transferTimeout, ReadTimeout: transferTimeout}
	envelopes, err := tr.In(msg, nsAddr)
	if err != nil {
		c.log.Printf("XFR of %s via %s failed: %s", zone, nsAddr, err)
		return false
	}

	var recCnt, blCnt int
	for env := range envelopes {
		if env.Error != nil {
			c.log.Printf("XFR of %s via %s failed mid-transfer: %s", zone, nsAddr, env.Error)
			return false
		}
		for _, rr := range env.RR {
			recCnt++
			c.processRR(zone, rr, &blCnt)
		}
	}

	c.log.Printf("received %d records (%d blacklisted) for %s from %s", recCnt, blCnt, zone, nsAddr)
	return true
}

func (c *Client) processRR(zone string, rr dns.RR, blCnt *int) {
	name := strings.TrimSuffix(rr.Header().Name, ".")
	if c.blName.Match(name) {
		*blCnt++
		return
	}

	var addr netip.Addr
	var ok bool

	switch rec := rr.(type) {
	case *dns.A:
		addr, ok = netip.AddrFromSlice(rec.A.To4())
	case *dns.AAAA:
		addr, ok = netip.AddrFromSlice(rec.AAAA.To16())
	case *dns.MX:
		c.log.Printf("don't know how to handle MX records yet: %s", name)
		return
	case *dns.NS:
		c.log.Printf("don't know how to handle NS records yet: %s", name)
		return
	default:
		return
	}
	if !ok {
		return
	}
	if blacklist.IsWellKnownBlocked(addr) || c.blAddr.Match(addr) {
		*blCnt++
		return
	}

	h := &model.Host{Name: name, Addr: addr, Src: model.SrcXFR}
	if err := c.db.HostAdd(h); err != nil {
		if _, dup := err.(*store.IntegrityError); dup {
			return
		}
		c.log.Printf("failed to add host %s/%s from XFR of %s: %s", h.Name, h.Addr, zone, err)
	}
}

// PerformXFR resolves x's nameservers, attempts the transfer against
// each in turn, and marks x finished with the resulting status. If x
// was already finished (a pre-existing row handed back to the Client),
// it is a no-op and the recorded status is returned unchanged.
func (c *Client) PerformXFR(x *model.XFR) bool {
	if !x.Finished.IsZero() {
		return x.Status
	}

	c.log.Printf("attempting XFR of %s", x.Name)

	if err := c.db.XfrStart(x); err != nil {
		c.log.Printf("failed to mark %s started: %s", x.Name, err)
	}

	nameservers, ok := c.res.LookupNS(x.Name)
	if !ok || len(nameservers) == 0 {
		c.log.Printf("no nameservers found for %s", x.Name)
		c.finish(x, false)
		return false
	}

	for _, ns := range nameservers {
		addr, ok := c.res.LookupHost(ns)
		if !ok {
			continue
		}
		nsAddr := net.JoinHostPort(addr.String(), "53")
		c.log.Printf("querying %s for AXFR of %s", nsAddr, x.Name)
		if c.attemptXFR(x.Name, nsAddr) {
			c.finish(x, true)
			return true
		}
	}

	c.finish(x, false)
	return false
}

func (c *Client) finish(x *model.XFR, status bool) {
	if err := c.db.XfrFinish(x, status); err != nil {
		c.log.Printf("failed to mark %s finished: %s", x.Name, err)
	}
}
