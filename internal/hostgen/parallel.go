package hostgen

import (
	"log"
	"sync"
	"time"

	"github.com/krylon/pykuang/internal/cache"
	"github.com/krylon/pykuang/internal/control"
	"github.com/krylon/pykuang/internal/model"
	"github.com/krylon/pykuang/internal/queue"
	"github.com/krylon/pykuang/internal/store"
	"github.com/krylon/pykuang/pkg/applog"
)

// hostQueueTimeout bounds how long the host_worker waits for a Host
// before re-checking the active flag.
const hostQueueTimeout = 5 * time.Second

// ParallelGenerator runs wcnt gen_workers, each owning its own
// HostGenerator, feeding a single host_worker that persists the results.
type ParallelGenerator struct {
	mu     sync.Mutex
	active bool
	wcnt   int
	idCnt  int

	cmdQ  *queue.Bounded[control.Message]
	hostQ *queue.Unbounded[*model.Host]

	cacheEnv *cache.Environment
	dbPath   string
	log      *log.Logger

	wg sync.WaitGroup
}

// NewParallel creates a ParallelGenerator with wcnt initial gen_workers, reading
// random addresses against cacheEnv and persisting Hosts to the store at
// dbPath.
func NewParallel(wcnt int, cacheEnv *cache.Environment, dbPath string) *ParallelGenerator {
	if wcnt <= 0 {
		panic("hostgen: wcnt must be positive")
	}
	return &ParallelGenerator{
		wcnt:     wcnt,
		cmdQ:     queue.NewBounded[control.Message](wcnt),
		hostQ:    queue.NewUnbounded[*model.Host](),
		cacheEnv: cacheEnv,
		dbPath:   dbPath,
		log:      applog.Get("pgen"),
	}
}

// Active reports whether the generator pool is currently running.
func (p *ParallelGenerator) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Start spawns the host_worker and wcnt gen_workers.
func (p *ParallelGenerator) Start() {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.active = true
	wcnt := p.wcnt
	p.mu.Unlock()

	p.wg.Add(1)
	go p.hostWorker()

	for i := 0; i < wcnt; i++ {
		p.spawnWorker()
	}
}

func (p *ParallelGenerator) spawnWorker() int {
	p.mu.Lock()
	p.idCnt++
	wid := p.idCnt
	p.mu.Unlock()

	p.wg.Add(1)
	go p.genWorker(wid)
	return wid
}

// Stop signals every current gen_worker to exit and clears the active
// flag.
func (p *ParallelGenerator) Stop() {
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

// StartOne spawns one additional gen_worker if the pool is active.
func (p *ParallelGenerator) StartOne() {
	if !p.Active() {
		p.log.Printf("ParallelGenerator is not active")
		return
	}
	p.mu.Lock()
	p.wcnt++
	p.mu.Unlock()
	p.spawnWorker()
}

// StopOne signals one gen_worker to exit. If it was the last one, the
// active flag clears.
func (p *ParallelGenerator) StopOne() {
	if !p.Active() {
		p.log.Printf("ParallelGenerator is not active")
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

// Wait blocks until every gen_worker and the host_worker have returned.
func (p *ParallelGenerator) Wait() {
	p.wg.Wait()
}

func (p *ParallelGenerator) genWorker(wid int) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.wcnt--
		p.mu.Unlock()
		p.log.Printf("gen_worker #%02d is finished", wid)
	}()

	p.log.Printf("gen_worker #%02d reporting for work", wid)

	gen, err := New(p.cacheEnv)
	if err != nil {
		p.log.Printf("gen_worker #%02d: cannot build HostGenerator: %s", wid, err)
		return
	}

	for p.Active() {
		if msg, ok := p.cmdQ.TryGet(); ok {
			switch msg.Tag {
			case control.CmdStop:
				p.log.Printf("gen_worker #%02d will quit now", wid)
				return
			case control.CmdPause:
				p.log.Printf("gen_worker #%02d will pause for %.0f seconds", wid, msg.Payload)
				time.Sleep(time.Duration(msg.Payload * float64(time.Second)))
			}
		}

		host, err := gen.GenerateHost()
		if err != nil {
			p.log.Printf("gen_worker #%02d: %s", wid, err)
			continue
		}
		if err := p.hostQ.Put(host); err != nil {
			p.log.Printf("gen_worker #%02d: host queue was shut down, quitting", wid)
			return
		}
	}
}

func (p *ParallelGenerator) hostWorker() {
	defer p.wg.Done()
	p.log.Printf("host_worker coming right up")

	db, err := store.Open(p.dbPath)
	if err != nil {
		p.log.Printf("host_worker: cannot open store: %s", err)
		p.hostQ.Close()
		return
	}
	defer func() {
		_ = db.Close()
		p.log.Printf("host worker is quitting now")
		p.hostQ.Close()
	}()

	for p.Active() {
		host, err := p.hostQ.GetTimeout(hostQueueTimeout)
		switch {
		case err == queue.ErrTimeout:
			continue
		case err == queue.ErrClosed:
			return
		case err != nil:
			p.log.Printf("host_worker: %s", err)
			continue
		}

		if err := db.HostAdd(host); err != nil {
			p.log.Printf("host_worker: failed to store host %s (%s): %s", host.Name, host.Addr, err)
		}
	}
}
