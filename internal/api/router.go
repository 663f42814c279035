// Package api serves the HTTP surface: health, population state, agents,
// zones, Prometheus metrics and the sync websocket endpoint.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/population"
	"github.com/udisondev/populace/internal/protocol"
	"github.com/udisondev/populace/internal/world"
	"github.com/udisondev/populace/internal/zone"
)

// Population is the session view the API reads.
type Population interface {
	Role() messaging.Role
	Strategy() population.Strategy
}

// Agents lists agents and, on a host, the observers' agents.
type Agents interface {
	Agents() []population.Agent
	Remotes() []world.RemoteAgent
}

// Zones lists the configured spawn zones.
type Zones interface {
	Baseline() []zone.Candidate
	Zones() []*zone.Zone
}

// RouterConfig holds the router dependencies. Population is required; the
// rest are optional and their routes are left out when nil.
type RouterConfig struct {
	Population Population
	Agents     Agents
	Zones      Zones
	Gatherer   prometheus.Gatherer
	Sync       http.Handler

	CORSOrigins    []string
	DisableLogging bool
}

// NewRouter builds the router. It starts no goroutines.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(requestLogger)
	}
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := &handlers{pop: cfg.Population, agents: cfg.Agents, zones: cfg.Zones}

	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/population", h.handlePopulation)
		if cfg.Agents != nil {
			r.Get("/agents", h.handleAgents)
		}
		if cfg.Zones != nil {
			r.Get("/zones", h.handleZones)
		}
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Sync != nil {
		r.Get("/sync", cfg.Sync.ServeHTTP)
	}

	return r
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

type handlers struct {
	pop    Population
	agents Agents
	zones  Zones
}

type healthResponse struct {
	Status string `json:"status"`
	Role   string `json:"role"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Role: h.pop.Role().String()})
}

type populationResponse struct {
	Role     string            `json:"role"`
	Strategy string            `json:"strategy,omitempty"`
	Count    int               `json:"count"`
	Entities []protocol.Entity `json:"entities"`
}

func (h *handlers) handlePopulation(w http.ResponseWriter, _ *http.Request) {
	resp := populationResponse{
		Role:     h.pop.Role().String(),
		Entities: []protocol.Entity{},
	}
	if st := h.pop.Strategy(); st != nil {
		resp.Strategy = st.Kind()
		for _, e := range st.Entities() {
			resp.Entities = append(resp.Entities, e.ToWire())
		}
	}
	resp.Count = len(resp.Entities)
	writeJSON(w, http.StatusOK, resp)
}

type agentResponse struct {
	ID   string     `json:"id"`
	Pos  [3]float64 `json:"pos"`
	Peer uint64     `json:"peer,omitempty"`
	Seen *time.Time `json:"seen,omitempty"`
}

func (h *handlers) handleAgents(w http.ResponseWriter, _ *http.Request) {
	remotes := make(map[string]world.RemoteAgent)
	for _, r := range h.agents.Remotes() {
		remotes[r.ID()] = r
	}

	out := []agentResponse{}
	for _, a := range h.agents.Agents() {
		resp := agentResponse{ID: a.ID, Pos: [3]float64{a.Pos.X(), a.Pos.Y(), a.Pos.Z()}}
		if r, ok := remotes[a.ID]; ok {
			seen := r.UpdatedAt
			resp.Peer = uint64(r.Peer)
			resp.Seen = &seen
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

type candidateResponse struct {
	ID     string `json:"id"`
	Chance int    `json:"chance"`
}

type zoneResponse struct {
	Name       string              `json:"name"`
	Shape      string              `json:"shape"`
	Shelter    bool                `json:"shelter"`
	Candidates []candidateResponse `json:"candidates"`
}

type zonesResponse struct {
	Baseline []candidateResponse `json:"baseline"`
	Zones    []zoneResponse      `json:"zones"`
}

func (h *handlers) handleZones(w http.ResponseWriter, _ *http.Request) {
	resp := zonesResponse{
		Baseline: candidates(h.zones.Baseline()),
		Zones:    []zoneResponse{},
	}
	for _, z := range h.zones.Zones() {
		resp.Zones = append(resp.Zones, zoneResponse{
			Name:       z.Name(),
			Shape:      z.Shape(),
			Shelter:    z.Shelter(),
			Candidates: candidates(z.Candidates()),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func candidates(list []zone.Candidate) []candidateResponse {
	out := make([]candidateResponse, 0, len(list))
	for _, c := range list {
		out = append(out, candidateResponse{ID: c.ID, Chance: c.Chance})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}
