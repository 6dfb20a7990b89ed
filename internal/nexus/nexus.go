// Package nexus composes the generator, XFR, and scanner facilities
// into one supervised unit, starting and stopping them in the order
// their data dependencies require.
package nexus

import (
	"log"
	"sync"

	"github.com/krylon/pykuang/internal/cache"
	"github.com/krylon/pykuang/internal/control"
	"github.com/krylon/pykuang/internal/hostgen"
	"github.com/krylon/pykuang/internal/scanner"
	"github.com/krylon/pykuang/internal/xfr"
	"github.com/krylon/pykuang/pkg/applog"
)

// Nexus starts XFR first (so newly generated hosts are picked up with
// their zone-transfer flag already meaningful), then the generator,
// then the scanner; it stops them in the reverse order.
type Nexus struct {
	mu     sync.Mutex
	active bool

	gen *hostgen.ParallelGenerator
	xf  *xfr.Processor
	scn *scanner.Scanner

	log *log.Logger
}

// New creates a Nexus wiring gcnt generator workers, xcnt XFR workers,
// and scnt scanner workers against the store at dbPath and the cache
// environment env.
func New(gcnt, xcnt, scnt int, env *cache.Environment, dbPath string) *Nexus {
	if gcnt <= 0 || xcnt <= 0 || scnt <= 0 {
		panic("nexus: worker counts must be positive")
	}
	return &Nexus{
		gen: hostgen.NewParallel(gcnt, env, dbPath),
		xf:  xfr.NewProcessor(xcnt, dbPath),
		scn: scanner.New(scnt, dbPath),
		log: applog.Get("nexus"),
	}
}

// Active reports whether the Nexus has been started.
func (n *Nexus) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Start is idempotent: starting an already-active Nexus is a no-op.
func (n *Nexus) Start() {
	n.mu.Lock()
	if n.active {
		n.mu.Unlock()
		return
	}
	n.active = true
	n.mu.Unlock()

	n.xf.Start()
	n.gen.Start()
	n.scn.Start()
}

// Stop is idempotent: stopping an inactive Nexus is a no-op.
func (n *Nexus) Stop() {
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return
	}
	n.active = false
	n.mu.Unlock()

	n.scn.Stop()
	n.gen.Stop()
	n.xf.Stop()
}

// StartOne routes to StartOne on the named facility's pool.
func (n *Nexus) StartOne(f control.Facility) {
	n.log.Printf("start one %s thread", f)
	switch f {
	case control.FacilityGenerator:
		n.gen.StartOne()
	case control.FacilityXFR:
		n.xf.StartOne()
	case control.FacilityScanner:
		n.scn.StartOne()
	}
}

// StopOne routes to StopOne on the named facility's pool.
func (n *Nexus) StopOne(f control.Facility) {
	n.log.Printf("stop one %s thread", f)
	switch f {
	case control.FacilityGenerator:
		n.gen.StopOne()
	case control.FacilityXFR:
		n.xf.StopOne()
	case control.FacilityScanner:
		n.scn.StopOne()
	}
}

// Wait blocks until every facility's workers have returned.
func (n *Nexus) Wait() {
	n.gen.Wait()
	n.xf.Wait()
	n.scn.Wait()
}
