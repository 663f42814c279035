package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/metrics"
	"github.com/udisondev/populace/internal/population"
	"github.com/udisondev/populace/internal/world"
	"github.com/udisondev/populace/internal/zone"
)

// fakePopulation отдает заданную роль и стратегию для тестов.
type fakePopulation struct {
	role     messaging.Role
	strategy population.Strategy
}

func (f *fakePopulation) Role() messaging.Role          { return f.role }
func (f *fakePopulation) Strategy() population.Strategy { return f.strategy }

type fixedLocator mgl64.Vec3

func (l fixedLocator) Position() mgl64.Vec3 { return mgl64.Vec3(l) }

func get(t *testing.T, srv *httptest.Server, path string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if v != nil {
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(NewRouter(RouterConfig{
		Population:     &fakePopulation{role: messaging.RoleHost},
		DisableLogging: true,
	}))
	defer srv.Close()

	var got healthResponse
	get(t, srv, "/healthz", &got)
	assert.Equal(t, healthResponse{Status: "ok", Role: "host"}, got)
}

func TestRouter_Population(t *testing.T) {
	mirror := population.NewMirror(nil)
	id := uuid.New()
	mirror.ApplySpawned(population.SpawnedEntity{
		ID:        id,
		Candidate: "rock",
		Pos:       mgl64.Vec3{1, 2, 3},
		Rot:       mgl64.QuatIdent(),
	})

	tests := []struct {
		name     string
		pop      *fakePopulation
		want     int
		strategy string
	}{
		{"no strategy", &fakePopulation{}, 0, ""},
		{"mirror", &fakePopulation{role: messaging.RoleObserver, strategy: mirror}, 1, "mirror"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewRouter(RouterConfig{Population: tt.pop, DisableLogging: true}))
			defer srv.Close()

			var got populationResponse
			get(t, srv, "/api/population", &got)
			assert.Equal(t, tt.want, got.Count)
			assert.Len(t, got.Entities, tt.want)
			assert.Equal(t, tt.strategy, got.Strategy)
			if tt.want > 0 {
				assert.Equal(t, id.String(), got.Entities[0].ID)
				assert.Equal(t, [4]float64{1, 0, 0, 0}, got.Entities[0].Rot)
			}
		})
	}
}

func TestRouter_Agents(t *testing.T) {
	tracker := world.NewAgentTracker("me", fixedLocator{1, 0, 1})
	tracker.SetRemote(messaging.PeerID(4), "obs", mgl64.Vec3{5, 0, 5})

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Population:     &fakePopulation{},
		Agents:         tracker,
		DisableLogging: true,
	}))
	defer srv.Close()

	var got []agentResponse
	get(t, srv, "/api/agents", &got)
	require.Len(t, got, 2)
	assert.Equal(t, "me", got[0].ID)
	assert.Nil(t, got[0].Seen)
	assert.Equal(t, "obs", got[1].ID)
	assert.Equal(t, uint64(4), got[1].Peer)
	assert.NotNil(t, got[1].Seen)
}

func TestRouter_Zones(t *testing.T) {
	reg, err := zone.NewRegistry([]zone.Candidate{{ID: "rock", Chance: 100}})
	require.NoError(t, err)
	z, err := zone.New(zone.Spec{
		Name:       "beach",
		Shape:      zone.ShapeCylinder,
		Nodes:      [][2]float64{{0, 0}},
		MinY:       -10,
		MaxY:       10,
		Radius:     20,
		Candidates: []zone.Candidate{{ID: "shell", Chance: 50}},
	})
	require.NoError(t, err)
	_, err = reg.Register(z)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Population:     &fakePopulation{},
		Zones:          reg,
		DisableLogging: true,
	}))
	defer srv.Close()

	var got zonesResponse
	get(t, srv, "/api/zones", &got)
	assert.Equal(t, []candidateResponse{{ID: "rock", Chance: 100}}, got.Baseline)
	require.Len(t, got.Zones, 1)
	assert.Equal(t, "beach", got.Zones[0].Name)
	assert.Equal(t, []candidateResponse{{ID: "shell", Chance: 50}}, got.Zones[0].Candidates)
}

func TestRouter_OptionalRoutes(t *testing.T) {
	srv := httptest.NewServer(NewRouter(RouterConfig{Population: &fakePopulation{}, DisableLogging: true}))
	defer srv.Close()

	for _, path := range []string{"/api/agents", "/api/zones", "/metrics", "/sync"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusNotFound, get(t, srv, path, nil).StatusCode)
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Skipped(population.SkipProbeMiss)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Population:     &fakePopulation{},
		Gatherer:       reg,
		DisableLogging: true,
	}))
	defer srv.Close()

	resp := get(t, srv, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `populace_pass_skipped_total{reason="probe_miss"} 1`)
}

func TestRouter_Recoverer(t *testing.T) {
	srv := httptest.NewServer(NewRouter(RouterConfig{
		Population:     &fakePopulation{},
		Sync:           http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		DisableLogging: true,
	}))
	defer srv.Close()

	assert.Equal(t, http.StatusInternalServerError, get(t, srv, "/sync", nil).StatusCode)
}
