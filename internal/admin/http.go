// Package admin exposes the fleet manager's control surface: an
// instance CRUD API over plain net/http, a liveness probe, and Prometheus
// exposition, in the same unadorned ServeMux style as prism-admin's HTTP
// server rather than a web framework.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/instance"
	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/metrics"
	"github.com/nazq/tei-manager-sub000/internal/pool"
	"github.com/nazq/tei-manager-sub000/internal/registry"
	"github.com/nazq/tei-manager-sub000/internal/state"
	"github.com/nazq/tei-manager-sub000/internal/tmerr"
)

var log = logging.WithComponent("admin")

// Server wires the Registry, Pool, and Store into one HTTP surface.
type Server struct {
	registry         *registry.Registry
	pool             *pool.Pool
	store            *state.Store
	metrics          *metrics.Collector
	workerBinaryPath string
	gracePeriod      time.Duration

	mux *http.ServeMux
}

// New builds the admin HTTP handler. Call ServeMux to obtain the handler to
// pass to http.Server.
func New(reg *registry.Registry, p *pool.Pool, store *state.Store, collector *metrics.Collector, workerBinaryPath string, gracePeriod time.Duration) *Server {
	s := &Server{
		registry:         reg,
		pool:             p,
		store:            store,
		metrics:          collector,
		workerBinaryPath: workerBinaryPath,
		gracePeriod:      gracePeriod,
		mux:              http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeMux returns the configured handler.
func (s *Server) ServeMux() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/instances", s.handleInstancesCollection)
	s.mux.HandleFunc("/instances/", s.handleInstanceItem)
	s.mux.HandleFunc("/pool/stats", s.handlePoolStats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"instances": s.registry.Count(),
	})
}

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, tmerr.ValidationError("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

func (s *Server) handleInstancesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		instances := s.registry.List()
		out := make([]instanceView, 0, len(instances))
		for _, inst := range instances {
			out = append(out, viewOf(inst))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var cfg config.InstanceConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, tmerr.ValidationError("invalid request body: "+err.Error()))
			return
		}
		inst, err := s.registry.Add(cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := inst.Start(s.workerBinaryPath); err != nil {
			writeError(w, err)
			return
		}
		s.registry.NotifyStarted(cfg.Name)
		s.saveStateBestEffort()
		writeJSON(w, http.StatusCreated, viewOf(inst))

	default:
		writeError(w, tmerr.ValidationError("method not allowed"))
	}
}

func (s *Server) handleInstanceItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/instances/")
	if name == "" {
		writeError(w, tmerr.MissingField("name"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		inst := s.registry.Get(name)
		if inst == nil {
			writeError(w, tmerr.InstanceNotFound(name))
			return
		}
		writeJSON(w, http.StatusOK, viewOf(inst))

	case http.MethodDelete:
		if err := s.registry.Remove(name, s.gracePeriod); err != nil {
			writeError(w, err)
			return
		}
		s.saveStateBestEffort()
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, tmerr.ValidationError("method not allowed"))
	}
}

func (s *Server) saveStateBestEffort() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(); err != nil {
		log.Error().Err(err).Msg("failed to persist state after instance change")
	}
}

type instanceView struct {
	Name   string              `json:"name"`
	Status string              `json:"status"`
	PID    int                 `json:"pid,omitempty"`
	Config config.InstanceConfig `json:"config"`
	Stats  instance.Stats      `json:"stats"`
}

func viewOf(inst *instance.Instance) instanceView {
	return instanceView{
		Name:   inst.Config.Name,
		Status: inst.Status().String(),
		PID:    inst.PID(),
		Config: inst.Config,
		Stats:  inst.Stats(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	terr, ok := tmerr.As(err)
	if !ok {
		terr = tmerr.Internal(err.Error())
	}
	writeJSON(w, tmerr.ToHTTPStatus(terr), map[string]any{
		"error":      terr.Message,
		"error_code": terr.Code,
		"timestamp":  time.Now().UTC(),
	})
}
