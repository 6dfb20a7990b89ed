package blacklist

import (
	"net/netip"
	"testing"
)

func TestIPBlacklistOrdering(t *testing.T) {
	bl, err := NewIPBlacklist([]string{
		"10.0.0.0/8",  // A
		"172.16.0.0/12", // B
		"192.168.0.0/16", // C
	})
	if err != nil {
		t.Fatalf("NewIPBlacklist: %s", err)
	}

	c := netip.MustParseAddr("192.168.1.1")
	a := netip.MustParseAddr("10.1.1.1")

	for i := 0; i < 3; i++ {
		if !bl.Match(c) {
			t.Fatalf("expected C to match")
		}
	}
	if !bl.Match(a) {
		t.Fatalf("expected A to match")
	}

	if bl.items[0].net.String() != "192.168.0.0/16" {
		t.Errorf("expected C first after 3 hits, got %s", bl.items[0].net)
	}
	if bl.items[1].net.String() != "10.0.0.0/8" {
		t.Errorf("expected A second after 1 hit, got %s", bl.items[1].net)
	}

	for i, it := range bl.items {
		if i > 0 && it.hitCnt > bl.items[i-1].hitCnt {
			t.Fatalf("list is not sorted descending by hit count: %v", bl.items)
		}
	}
}

func TestIPBlacklistNoMatch(t *testing.T) {
	bl := DefaultIPBlacklist()
	pub := netip.MustParseAddr("8.8.8.8")
	if bl.Match(pub) {
		t.Errorf("8.8.8.8 should not be blacklisted")
	}
}

func TestNameBlacklistDefaults(t *testing.T) {
	bl := DefaultNameBlacklist()

	cases := []struct {
		name  string
		match bool
	}{
		{"host123.example.com", true},
		{"dhcp-42.isp.net", true},
		{"dyn123.provider.com", true},
		{"mail.krylon.example", false},
	}

	for _, c := range cases {
		if got := bl.Match(c.name); got != c.match {
			t.Errorf("Match(%q) = %v, want %v", c.name, got, c.match)
		}
	}
}

func TestIsWellKnownBlocked(t *testing.T) {
	cases := []struct {
		addr  string
		block bool
	}{
		{"224.0.0.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"10.1.2.3", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
	}

	for _, c := range cases {
		addr := netip.MustParseAddr(c.addr)
		if got := IsWellKnownBlocked(addr); got != c.block {
			t.Errorf("IsWellKnownBlocked(%s) = %v, want %v", c.addr, got, c.block)
		}
	}
}
