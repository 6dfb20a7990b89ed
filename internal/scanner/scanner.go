// Package scanner probes the ports of known Hosts: a feeder draws
// random hosts and picks one unscanned port for each, a pool of workers
// runs the matching protocol probe, and a gatherer persists whatever
// came back.
package scanner

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/krylon/pykuang/internal/control"
	"github.com/krylon/pykuang/internal/model"
	"github.com/krylon/pykuang/internal/queue"
	"github.com/krylon/pykuang/internal/store"
	"github.com/krylon/pykuang/pkg/applog"
)

// curatedPorts is the default port list scanned when a Host's source
// doesn't dictate a specific protocol to look for first.
var curatedPorts = []int{
	21, 22, 23, 25, 53, 79, 80, 110, 143, 161, 220, 389,
	443, 1433, 3270, 3306, 5432, 6379, 5900, 8080, 9023,
}

// mxPorts is tried first for Hosts discovered via an MX record.
var mxPorts = []int{25, 110, 143, 587}

// defaultInterval is how often the feeder draws a new batch of hosts
// and how long a worker waits on an empty scan queue before re-checking
// its command queue.
const defaultInterval = 2 * time.Second

// ScanRequest pairs a Host with the port the feeder chose for it.
type ScanRequest struct {
	Host *model.Host
	Port int
}

// validPort reports whether port is a valid TCP/UDP port number, per
// spec.md's boundary behaviour: 0 and 65536 (and anything outside
// 1-65535) are rejected.
func validPort(port int) bool {
	return port > 0 && port < 65536
}

// newScanRequest builds a ScanRequest, rejecting port numbers outside
// 1-65535 at construction, per spec.md's "Port numbers 0 and 65536 are
// rejected at the ScanRequest boundary".
func newScanRequest(host *model.Host, port int) (ScanRequest, error) {
	if !validPort(port) {
		return ScanRequest{}, fmt.Errorf("scanner: invalid port %d", port)
	}
	return ScanRequest{Host: host, Port: port}, nil
}

// ScanResult is a completed probe, ready for the gatherer to persist.
type ScanResult struct {
	Service *model.Service
}

// Scanner draws random hosts, probes one unscanned port per host, and
// persists whatever services respond.
type Scanner struct {
	mu     sync.Mutex
	active bool
	wcnt   int
	idCnt  int

	interval time.Duration

	cmdQ  *queue.Bounded[control.Message]
	scanQ *queue.Bounded[ScanRequest]
	resQ  *queue.Bounded[ScanResult]

	dbPath string
	log    *log.Logger

	wg sync.WaitGroup
}

// New creates a Scanner with wcnt initial workers, reading and writing
// the store at dbPath.
func New(wcnt int, dbPath string) *Scanner {
	if wcnt <= 0 {
		panic("scanner: wcnt must be positive")
	}
	return &Scanner{
		wcnt:     wcnt,
		interval: defaultInterval,
		cmdQ:     queue.NewBounded[control.Message](wcnt * 2),
		scanQ:    queue.NewBounded[ScanRequest](wcnt),
		resQ:     queue.NewBounded[ScanResult](wcnt * 2),
		dbPath:   dbPath,
		log:      applog.Get("scanner"),
	}
}

// Active reports whether the scanner pool is currently running.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start launches the feeder, the gatherer, and wcnt scan workers.
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	wcnt := s.wcnt
	s.mu.Unlock()

	s.wg.Add(2)
	go s.feeder()
	go s.gatherer()

	for i := 0; i < wcnt; i++ {
		s.spawnWorker()
	}
}

func (s *Scanner) spawnWorker() {
	s.mu.Lock()
	s.idCnt++
	wid := s.idCnt
	s.mu.Unlock()

	s.wg.Add(1)
	go s.scanWorker(wid)
}

// Stop tells every worker, the feeder, and the gatherer to quit.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.scanQ.Close()
	s.resQ.Close()
	s.cmdQ.Close()
}

// StartOne starts one additional scan worker.
func (s *Scanner) StartOne() {
	s.mu.Lock()
	s.wcnt++
	s.mu.Unlock()
	s.spawnWorker()
}

// StopOne stops one scan worker.
func (s *Scanner) StopOne() {
	s.mu.Lock()
	if s.wcnt < 1 || !s.active {
		s.mu.Unlock()
		s.log.Printf("scanner does not appear to be active")
		return
	}
	s.mu.Unlock()
	_ = s.cmdQ.Put(control.Message{Tag: control.CmdStop})
}

// Wait blocks until the feeder, gatherer, and every worker have
// returned.
func (s *Scanner) Wait() {
	s.wg.Wait()
}

func (s *Scanner) currentWcnt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wcnt
}

func (s *Scanner) feeder() {
	defer s.wg.Done()
	s.log.Printf("feeder thread is coming up")

	db, err := store.Open(s.dbPath)
	if err != nil {
		s.log.Printf("feeder: cannot open store: %s", err)
		return
	}
	defer func() { _ = db.Close() }()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for s.Active() {
		cnt := s.currentWcnt()
		if cnt < 1 {
			time.Sleep(s.interval)
			continue
		}

		hosts, err := db.HostGetRandom(cnt)
		if err != nil {
			s.log.Printf("feeder: %s", err)
			time.Sleep(s.interval)
			continue
		}

		for _, h := range hosts {
			port, ok := selectPort(db, h, rng)
			if !ok {
				s.log.Printf("no port was found for %s/%s", h.Name, h.Addr)
				continue
			}
			req, err := newScanRequest(h, port)
			if err != nil {
				s.log.Printf("feeder: %s", err)
				continue
			}
			if err := s.scanQ.Put(req); err != nil {
				s.log.Printf("feeder thread is quitting")
				return
			}
		}
		time.Sleep(s.interval)
	}

	s.log.Printf("feeder thread is quitting")
	s.scanQ.Close()
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// selectPort picks one port for host to scan next, per spec.md §4.7:
// MX-sourced hosts try the mail ports first, NS-sourced hosts try DNS
// first, everything else draws a random permutation of curatedPorts.
// ok is false once every applicable port has already been seen.
func selectPort(db *store.Store, host *model.Host, rng *rand.Rand) (port int, ok bool) {
	services, err := db.ServiceGetByHost(host)
	if err != nil {
		return 0, false
	}
	seen := make(map[int]bool, len(services))
	for _, svc := range services {
		seen[svc.Port] = true
	}

	switch host.Src {
	case model.SrcMX:
		for _, p := range mxPorts {
			if !seen[p] {
				return p, true
			}
		}
	case model.SrcNS:
		if !seen[53] {
			return 53, true
		}
	}

	for _, idx := range rng.Perm(len(curatedPorts)) {
		p := curatedPorts[idx]
		if !seen[p] {
			return p, true
		}
	}
	return 0, false
}

func (s *Scanner) scanWorker(wid int) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.wcnt--
		s.mu.Unlock()
		s.log.Printf("scan worker %02d is quitting", wid)
	}()

	s.log.Printf("scan worker %02d starting up", wid)

	for s.Active() {
		if msg, ok := s.cmdQ.TryGet(); ok {
			switch msg.Tag {
			case control.CmdStop, control.CmdStopOne:
				return
			}
		}

		req, err := s.scanQ.GetTimeout(s.interval)
		switch {
		case err == queue.ErrTimeout:
			continue
		case err == queue.ErrClosed:
			return
		case err != nil:
			continue
		}

		res := s.scanPort(req)
		if res == nil {
			continue
		}
		if err := s.resQ.Put(*res); err != nil {
			return
		}
	}
}

// scanPort dispatches req to the probe matching its port, per
// spec.md §4.7. Ports with no matching probe are not scanned.
func (s *Scanner) scanPort(req ScanRequest) *ScanResult {
	if !validPort(req.Port) {
		s.log.Printf("refusing to scan invalid port %d for %s", req.Port, req.Host.Addr)
		return nil
	}

	addr := req.Host.Addr.String()

	var ok bool
	var response string

	switch req.Port {
	case 21, 22, 25, 110, 143, 220:
		ok, response = scanTCPGeneric(addr, req.Port)
	case 80, 443, 8080:
		ok, response = scanHTTP(addr, req.Port, req.Host.Name, req.Port == 443)
	case 79:
		ok, response = scanFinger(addr, req.Port)
	case 23, 3270, 9023:
		ok, response = scanTelnet(addr, req.Port)
	case 53:
		ok, response = scanDNS(addr, req.Port)
	default:
		return nil
	}

	if !ok {
		return nil
	}

	return &ScanResult{
		Service: &model.Service{
			HostID:   req.Host.ID,
			Port:     req.Port,
			Added:    time.Now(),
			Response: &response,
		},
	}
}

func (s *Scanner) gatherer() {
	defer s.wg.Done()
	s.log.Printf("gatherer thread is starting up")

	db, err := store.Open(s.dbPath)
	if err != nil {
		s.log.Printf("gatherer: cannot open store: %s", err)
		return
	}
	defer func() { _ = db.Close() }()

	for s.Active() {
		res, err := s.resQ.GetTimeout(s.interval)
		switch {
		case err == queue.ErrTimeout:
			continue
		case err == queue.ErrClosed:
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
			s.log.Printf("gatherer thread is quitting")
			return
		case err != nil:
			continue
		}

		if err := db.ServiceAdd(res.Service); err != nil {
			s.log.Printf("failed to add service to database: %s", err)
		}
	}

	s.log.Printf("gatherer thread is quitting")
}
