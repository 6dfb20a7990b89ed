package scanner

import (
	"net"
	"strconv"
	"testing"
)

// silentListener accepts one connection and closes it without writing
// anything, simulating a closed-but-silent TCP port that never sends an
// unsolicited banner.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}()

	return ln.Addr().String()
}

func TestScanTCPGenericSilentPortIsNoResult(t *testing.T) {
	host, port := mustSplitHostPort(t, silentListener(t))

	ok, resp := scanTCPGeneric(host, port)
	if ok {
		t.Errorf("expected a silent, closed connection to report no result, got response %q", resp)
	}
}

func TestScanFingerSilentPortIsNoResult(t *testing.T) {
	host, port := mustSplitHostPort(t, silentListener(t))

	ok, resp := scanFinger(host, port)
	if ok {
		t.Errorf("expected a silent, closed connection to report no result, got response %q", resp)
	}
}

func TestProbesRejectBoundaryPorts(t *testing.T) {
	for _, p := range []int{0, 65536} {
		if ok, _ := scanTCPGeneric("127.0.0.1", p); ok {
			t.Errorf("scanTCPGeneric accepted invalid port %d", p)
		}
		if ok, _ := scanFinger("127.0.0.1", p); ok {
			t.Errorf("scanFinger accepted invalid port %d", p)
		}
		if ok, _ := scanTelnet("127.0.0.1", p); ok {
			t.Errorf("scanTelnet accepted invalid port %d", p)
		}
		if ok, _ := scanHTTP("127.0.0.1", p, "", false); ok {
			t.Errorf("scanHTTP accepted invalid port %d", p)
		}
		if ok, _ := scanDNS("127.0.0.1", p); ok {
			t.Errorf("scanDNS accepted invalid port %d", p)
		}
	}
}

func mustSplitHostPort(t *testing.T, addr string) (host string, port int) {
	t.Helper()
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%s): %s", addr, err)
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("parse port %s: %s", p, err)
	}
	return h, portNum
}
