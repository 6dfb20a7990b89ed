// Package model defines the persistent data types shared by every
// subsystem of pykuang: hosts, the services found on them, and the
// zone-transfer attempts made against their DNS zones.
package model

import (
	"net/netip"
	"strings"
	"time"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// HostSource describes how a Host entered the Store.
type HostSource int

// Valid HostSource values. The zero value is intentionally invalid so a
// Host built without specifying Src fails the store's CHECK constraint
// rather than silently defaulting to User.
const (
	SrcUser HostSource = iota + 1
	SrcGenerator
	SrcXFR
	SrcMX
	SrcNS
)

// String renders the HostSource the way log lines expect to see it.
func (s HostSource) String() string {
	switch s {
	case SrcUser:
		return "User"
	case SrcGenerator:
		return "Generator"
	case SrcXFR:
		return "XFR"
	case SrcMX:
		return "MX"
	case SrcNS:
		return "NS"
	default:
		return "Unknown"
	}
}

// Host is a system on the Internet, discovered by one of the generator,
// XFR, or user-seeding paths.
type Host struct {
	ID          int64
	Name        string
	Addr        netip.Addr
	Src         HostSource
	Added       time.Time
	LastContact *time.Time
	Sysname     string
	Location    string
	XFR         bool
}

// Zone returns the DNS zone a Host belongs to: the suffix of Name after
// its first label. An unqualified Name (no dot) has no zone.
func (h *Host) Zone() string {
	idx := strings.IndexByte(h.Name, '.')
	if idx < 0 {
		return ""
	}
	return h.Name[idx+1:]
}

// ZonePSL returns the registrable DNS zone a Host belongs to according
// to the Public Suffix List, so that e.g. "www.shop.example.co.uk"
// yields "example.co.uk" rather than Zone's naive "shop.example.co.uk",
// and "example.co.uk" yields itself rather than Zone's bare "co.uk". It
// falls back to Zone when the name is itself a public suffix or the PSL
// lookup fails. Used by the XFR feeder so that hosts under a registrable
// domain don't queue transfers for bare public suffixes.
func (h *Host) ZonePSL() string {
	if !strings.Contains(h.Name, ".") {
		return ""
	}
	dom, err := publicsuffix.Domain(h.Name)
	if err != nil {
		return h.Zone()
	}
	return dom
}

// Service is a port found open (and the banner captured, if any) on a
// Host.
type Service struct {
	ID       int64
	HostID   int64
	Port     int
	Added    time.Time
	Response *string
}

// XFR tracks one attempt (or pending attempt) to transfer a DNS zone.
type XFR struct {
	ID       int64
	Name     string
	Added    time.Time
	Started  time.Time
	Finished time.Time
	Status   bool
}

// Pending reports whether the XFR has not yet been marked finished.
func (x *XFR) Pending() bool {
	return x.Finished.IsZero()
}
