package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/udisondev/populace/internal/api"
	"github.com/udisondev/populace/internal/config"
	"github.com/udisondev/populace/internal/journal"
	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/metrics"
	"github.com/udisondev/populace/internal/population"
	"github.com/udisondev/populace/internal/world"
)

// app holds the wired components of one process.
type app struct {
	bus      *messaging.Bus
	session  *population.Session
	store    *world.Store
	tracker  *world.AgentTracker
	wanderer *world.Wanderer

	hub        *messaging.Hub
	client     *messaging.Client
	reporter   *world.Reporter
	journal    *journal.Journal
	httpServer *http.Server
}

func build(ctx context.Context, cfg config.Populace) (*app, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	slog.Info("random seed", "seed", seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	popCfg, err := cfg.PopulationConfig()
	if err != nil {
		return nil, err
	}
	role, err := cfg.ParseRole()
	if err != nil {
		return nil, err
	}

	sceneWorld, terrain, err := cfg.BuildScene()
	if err != nil {
		return nil, fmt.Errorf("building scene: %w", err)
	}
	registry, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("building zones: %w", err)
	}

	a := &app{store: world.NewStore()}

	var local world.Locator
	if cfg.Agent.Enabled {
		a.wanderer = world.NewWanderer(world.WandererConfig{
			Start: mgl64.Vec3(cfg.Agent.Start),
			Speed: cfg.Agent.Speed,
			Tick:  cfg.Agent.Tick,
			Bound: cfg.Agent.Bound,
			Reach: cfg.Agent.Reach,
		}, terrain, a.store, rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())))
		local = a.wanderer
	}
	a.tracker = world.NewAgentTracker(cfg.Agent.Name, local)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	recorders := []population.Recorder{m}
	if cfg.Journal.Enabled {
		a.journal = journal.New(cfg.Journal.Dir, cfg.Journal.QueueSize)
		recorders = append(recorders, a.journal)
		slog.Info("event journal enabled", "dir", cfg.Journal.Dir)
	}

	var conditions population.Conditions = population.Always{}
	if cfg.Stage.Enabled {
		progress := world.NewProgress(cfg.Stage.Initial, cfg.Stage.Rate)
		conditions = population.StageProgress{
			Value: progress.Value,
			Start: cfg.Stage.Start,
			End:   cfg.Stage.End,
		}
	}

	a.bus = messaging.NewBus(m)
	a.bus.SetDebug(cfg.Network.Debug)

	a.session, err = population.NewSession(popCfg, population.Deps{
		Scene:      sceneWorld,
		Factory:    a.store,
		Agents:     a.tracker,
		Zones:      registry,
		Conditions: conditions,
		Recorder:   population.MultiRecorder(recorders...),
		Rand:       rng,
	}, a.bus, a.tracker, population.SessionOptions{MirrorEntities: cfg.Population.MirrorEntities})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	a.store.OnPickup(a.session.EntityPickedUp)

	routes := api.RouterConfig{
		Population:  a.session,
		Agents:      a.tracker,
		Gatherer:    promReg,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}

	switch role {
	case messaging.RoleHost:
		a.hub = messaging.NewHub(a.bus, cfg.HubConfig())
		a.bus.SetTransport(a.hub)
		routes.Zones = registry
		routes.Sync = a.hub.Handler()
		if !cfg.HTTP.Enabled {
			slog.Warn("host role without http server: observers cannot join")
		}
	case messaging.RoleObserver:
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		a.client, err = messaging.Dial(dialCtx, cfg.Network.HostURL, a.bus, cfg.ClientConfig())
		cancel()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("joining host %s: %w", cfg.Network.HostURL, err)
		}
		a.bus.SetTransport(a.client)
		slog.Info("joined host", "url", cfg.Network.HostURL, "peer_id", a.client.PeerID())
		if local != nil {
			a.reporter = world.NewReporter(a.bus, local, cfg.Agent.Name, cfg.Network.ReportInterval)
		}
	}

	if cfg.HTTP.Enabled {
		a.httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr(),
			Handler:           api.NewRouter(routes),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

func (a *app) close() {
	if a.session != nil {
		a.session.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Error("closing journal", "error", err)
		}
	}
	slog.Info("world state at exit",
		"entities", a.store.Count(),
		"persistent", len(a.store.Persistent()))
}
