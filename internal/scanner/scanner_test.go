package scanner

import (
	"math/rand"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/krylon/pykuang/internal/model"
	"github.com/krylon/pykuang/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %s", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSelectPortMXPrefersMailPorts(t *testing.T) {
	s := openTestStore(t)
	h := &model.Host{Name: "mx.example.com", Addr: netip.MustParseAddr("192.0.2.1"), Src: model.SrcMX}
	if err := s.HostAdd(h); err != nil {
		t.Fatalf("HostAdd: %s", err)
	}

	rng := rand.New(rand.NewSource(1))
	port, ok := selectPort(s, h, rng)
	if !ok {
		t.Fatalf("expected a port to be selected")
	}
	found := false
	for _, p := range mxPorts {
		if p == port {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an MX port, got %d", port)
	}
}

func TestSelectPortMXExhaustedFallsThrough(t *testing.T) {
	s := openTestStore(t)
	h := &model.Host{Name: "mx.example.com", Addr: netip.MustParseAddr("192.0.2.2"), Src: model.SrcMX}
	if err := s.HostAdd(h); err != nil {
		t.Fatalf("HostAdd: %s", err)
	}
	for _, p := range mxPorts {
		if err := s.ServiceAdd(&model.Service{HostID: h.ID, Port: p, Added: time.Now()}); err != nil {
			t.Fatalf("ServiceAdd: %s", err)
		}
	}

	rng := rand.New(rand.NewSource(1))
	port, ok := selectPort(s, h, rng)
	if !ok {
		t.Fatalf("expected a port to be selected")
	}
	for _, p := range mxPorts {
		if p == port {
			t.Errorf("expected to fall through to curatedPorts, got MX port %d", port)
		}
	}
}

func TestSelectPortNSPrefersDNS(t *testing.T) {
	s := openTestStore(t)
	h := &model.Host{Name: "ns.example.com", Addr: netip.MustParseAddr("192.0.2.3"), Src: model.SrcNS}
	if err := s.HostAdd(h); err != nil {
		t.Fatalf("HostAdd: %s", err)
	}

	rng := rand.New(rand.NewSource(1))
	port, ok := selectPort(s, h, rng)
	if !ok || port != 53 {
		t.Errorf("expected port 53 for an NS-sourced host, got %d (ok=%v)", port, ok)
	}
}

func TestSelectPortExhaustedReturnsAbsent(t *testing.T) {
	s := openTestStore(t)
	h := &model.Host{Name: "full.example.com", Addr: netip.MustParseAddr("192.0.2.4"), Src: model.SrcUser}
	if err := s.HostAdd(h); err != nil {
		t.Fatalf("HostAdd: %s", err)
	}
	for _, p := range curatedPorts {
		if err := s.ServiceAdd(&model.Service{HostID: h.ID, Port: p, Added: time.Now()}); err != nil {
			t.Fatalf("ServiceAdd: %s", err)
		}
	}

	rng := rand.New(rand.NewSource(1))
	_, ok := selectPort(s, h, rng)
	if ok {
		t.Errorf("expected selectPort to report absent once every curated port is seen")
	}
}

func TestNewScanRequestRejectsBoundaryPorts(t *testing.T) {
	h := &model.Host{Name: "bound.example.com", Addr: netip.MustParseAddr("192.0.2.5"), Src: model.SrcUser}

	for _, p := range []int{0, 65536, -1, 70000} {
		if _, err := newScanRequest(h, p); err == nil {
			t.Errorf("expected port %d to be rejected", p)
		}
	}
	for _, p := range []int{1, 80, 65535} {
		req, err := newScanRequest(h, p)
		if err != nil {
			t.Errorf("expected port %d to be accepted, got %s", p, err)
		}
		if req.Port != p {
			t.Errorf("expected req.Port == %d, got %d", p, req.Port)
		}
	}
}

func TestScanPortRefusesBoundaryPorts(t *testing.T) {
	dir := t.TempDir()
	sc := New(1, filepath.Join(dir, "test.db"))

	h := &model.Host{Name: "bound.example.com", Addr: netip.MustParseAddr("192.0.2.6"), Src: model.SrcUser}
	if res := sc.scanPort(ScanRequest{Host: h, Port: 0}); res != nil {
		t.Errorf("expected scanPort to refuse port 0, got %+v", res)
	}
	if res := sc.scanPort(ScanRequest{Host: h, Port: 65536}); res != nil {
		t.Errorf("expected scanPort to refuse port 65536, got %+v", res)
	}
}

func TestScannerLifecycleFlags(t *testing.T) {
	dir := t.TempDir()
	sc := New(1, filepath.Join(dir, "test.db"))

	sc.Start()
	if !sc.Active() {
		t.Fatalf("expected scanner to be active after Start")
	}

	sc.Stop()
	if sc.Active() {
		t.Errorf("expected Active to clear after Stop")
	}
}
