package xfr

import (
	"log"
	"sync"
	"time"

	"github.com/krylon/pykuang/internal/control"
	"github.com/krylon/pykuang/internal/model"
	"github.com/krylon/pykuang/internal/queue"
	"github.com/krylon/pykuang/internal/store"
	"github.com/krylon/pykuang/pkg/applog"
)

// feederIdleSleep is how long the feeder waits before re-polling when
// there are currently no un-transferred hosts.
const feederIdleSleep = 2 * time.Second

// requestTimeout bounds how long a worker waits on the request queue
// before re-checking the active flag.
const requestTimeout = 2500 * time.Millisecond

// Processor finds hosts whose zone has not yet been offered for
// transfer, queues one XFR attempt per zone, and dispatches them to a
// pool of Client workers.
type Processor struct {
	mu     sync.Mutex
	active bool
	wcnt   int
	idCnt  int

	cmdQ     *queue.Bounded[control.Message]
	requestQ *queue.Unbounded[*model.XFR]

	dbPath string
	log    *log.Logger

	wg sync.WaitGroup
}

// NewProcessor creates a Processor with wcnt initial workers, reading
// and writing the store at dbPath.
func NewProcessor(wcnt int, dbPath string) *Processor {
	if wcnt < 0 {
		panic("xfr: wcnt must not be negative")
	}
	return &Processor{
		wcnt:     wcnt,
		cmdQ:     queue.NewBounded[control.Message](max1(wcnt)),
		requestQ: queue.NewUnbounded[*model.XFR](),
		dbPath:   dbPath,
		log:      applog.Get("xfr_proc"),
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Active reports whether the processor is currently running.
func (p *Processor) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Start launches the feeder and wcnt workers.
func (p *Processor) Start() {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.active = true
	wcnt := p.wcnt
	p.mu.Unlock()

	p.wg.Add(1)
	go p.feeder()

	for i := 0; i < wcnt; i++ {
		p.spawnWorker()
	}
}

func (p *Processor) spawnWorker() {
	p.mu.Lock()
	p.idCnt++
	wid := p.idCnt
	p.mu.Unlock()

	p.wg.Add(1)
	go p.worker(wid)
}

// Stop signals every current worker to exit.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	cnt := p.wcnt
	p.mu.Unlock()

	for i := 0; i < cnt; i++ {
		_ = p.cmdQ.Put(control.Message{Tag: control.CmdStop})
	}
}

// StartOne spawns one additional worker if the processor is active.
func (p *Processor) StartOne() {
	if !p.Active() {
		p.log.Printf("XFRProcessor is not active")
		return
	}
	p.mu.Lock()
	p.wcnt++
	p.mu.Unlock()
	p.spawnWorker()
}

// StopOne signals one worker to exit. If it was the last one, the
// active flag clears.
func (p *Processor) StopOne() {
	if !p.Active() {
		p.log.Printf("XFRProcessor is not active")
		return
	}
	p.mu.Lock()
	last := p.wcnt == 1
	if last {
		p.active = false
	}
	p.mu.Unlock()
	_ = p.cmdQ.Put(control.Message{Tag: control.CmdStop})
}

// Wait blocks until the feeder and every worker have returned.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) feeder() {
	defer p.wg.Done()
	p.log.Printf("XFR feeder starting up")

	db, err := store.Open(p.dbPath)
	if err != nil {
		p.log.Printf("feeder: cannot open store: %s", err)
		return
	}
	defer func() { _ = db.Close() }()

	for p.Active() {
		hosts, err := db.HostGetNoXFR(p.currentWcnt())
		if err != nil {
			p.log.Printf("feeder: %s", err)
			time.Sleep(feederIdleSleep)
			continue
		}
		if len(hosts) == 0 {
			time.Sleep(feederIdleSleep)
			continue
		}

		for _, h := range hosts {
			zone := h.ZonePSL()
			if zone == "" {
				_ = db.HostSetXfr(h)
				continue
			}

			existing, err := db.XfrGetByName(zone)
			if err != nil {
				p.log.Printf("feeder: checking existing XFR for %s: %s", zone, err)
				continue
			}
			if existing == nil {
				x := &model.XFR{Name: zone}
				if err := db.XfrAdd(x); err != nil {
					if _, dup := err.(*store.IntegrityError); !dup {
						p.log.Printf("feeder: failed to add XFR for %s: %s", zone, err)
					}
				} else if err := p.requestQ.Put(x); err != nil {
					p.log.Printf("feeder: request queue shut down, quitting")
					return
				}
			}

			if err := db.HostSetXfr(h); err != nil {
				p.log.Printf("feeder: failed to flip xfr flag for host %d: %s", h.ID, err)
			}
		}
	}
}

func (p *Processor) currentWcnt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wcnt <= 0 {
		return 1
	}
	return p.wcnt
}

func (p *Processor) worker(wid int) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.wcnt--
		p.mu.Unlock()
	}()

	p.log.Printf("XFR worker %d reporting for work", wid)

	db, err := store.Open(p.dbPath)
	if err != nil {
		p.log.Printf("worker %d: cannot open store: %s", wid, err)
		return
	}
	defer func() { _ = db.Close() }()

	client := NewClient(db)

	for p.Active() {
		if msg, ok := p.cmdQ.TryGet(); ok {
			switch msg.Tag {
			case control.CmdStop:
				p.log.Printf("xfr worker %d will quit now", wid)
				return
			case control.CmdPause:
				p.log.Printf("xfr worker %d will pause for %.0f seconds", wid, msg.Payload)
				time.Sleep(time.Duration(msg.Payload * float64(time.Second)))
			}
		}

		x, err := p.requestQ.GetTimeout(requestTimeout)
		switch {
		case err == queue.ErrTimeout:
			continue
		case err == queue.ErrClosed:
			return
		case err != nil:
			continue
		}

		client.PerformXFR(x)
	}
}
