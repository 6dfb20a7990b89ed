// Package web serves a small read-only JSON inspector over the store:
// counts, hosts, and their services, for watching pykuang work
// without opening the database directly.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/krylon/pykuang/internal/store"
	"github.com/krylon/pykuang/pkg/applog"
)

// Server is the optional HTTP inspector, off by default per
// Web.Active.
type Server struct {
	db    *store.Store
	http  *http.Server
	log   *log.Logger
	start time.Time
}

// StatusResponse is the payload of GET /status.
type StatusResponse struct {
	Runtime  string `json:"runtime"`
	Hosts    int64  `json:"hosts"`
	Services int64  `json:"services"`
	Xfrs     int64  `json:"xfrs"`
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// New creates a Server listening on addr, reading from db. Call Start
// to begin serving.
func New(db *store.Store, addr string) *Server {
	s := &Server{
		db:    db,
		log:   applog.Get("web"),
		start: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/hosts", s.handleHosts)
	mux.HandleFunc("/services", s.handleServices)
	mux.HandleFunc("/xfr", s.handleXfr)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background. Errors other than a clean
// Shutdown are logged, matching the teacher's status server.
func (s *Server) Start() {
	s.log.Printf("web inspector starting on %s", s.http.Addr)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Printf("web inspector error: %s", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	hosts, err := s.db.HostCount()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	services, err := s.db.ServiceCount()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	xfrs, err := s.db.XfrCount()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, StatusResponse{
		Runtime:  time.Since(s.start).Round(time.Second).String(),
		Hosts:    hosts,
		Services: services,
		Xfrs:     xfrs,
	})
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	if addr := r.URL.Query().Get("addr"); addr != "" {
		ip, err := netip.ParseAddr(addr)
		if err != nil {
			http.Error(w, "invalid addr", http.StatusBadRequest)
			return
		}
		h, err := s.db.HostGetByAddr(ip)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, h)
		return
	}

	hosts, err := s.db.HostGetAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, hosts)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("host_id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "host_id is required", http.StatusBadRequest)
		return
	}

	h, err := s.db.HostGetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h == nil {
		http.Error(w, "no such host", http.StatusNotFound)
		return
	}

	services, err := s.db.ServiceGetByHost(h)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, services)
}

func (s *Server) handleXfr(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	x, err := s.db.XfrGetByName(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if x == nil {
		http.Error(w, "no such zone", http.StatusNotFound)
		return
	}
	s.writeJSON(w, x)
}
