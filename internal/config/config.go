package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/population"
	"github.com/udisondev/populace/internal/scene"
	"github.com/udisondev/populace/internal/zone"
)

// DefaultPath is used when POPULACE_CONFIG is not set.
const DefaultPath = "config/populace.yaml"

// PathEnv overrides DefaultPath.
const PathEnv = "POPULACE_CONFIG"

var ErrInvalid = errors.New("invalid config")

// Populace holds all configuration for the populace binary.
type Populace struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	Role     string `yaml:"role"`      // unconnected, host, observer
	Seed     uint64 `yaml:"seed"`      // 0 = random

	Population Population `yaml:"population"`
	Zones      Zones      `yaml:"zones"`
	Scene      Scene      `yaml:"scene"`
	Network    Network    `yaml:"network"`
	HTTP       HTTP       `yaml:"http"`
	Journal    Journal    `yaml:"journal"`
	Agent      Agent      `yaml:"agent"`
	Stage      Stage      `yaml:"stage"`
}

// Population tunes the spawner.
type Population struct {
	Radius        int           `yaml:"radius"`
	Step          int           `yaml:"step"`
	Interval      time.Duration `yaml:"interval"`
	MaxEntities   float64       `yaml:"max_entities"`
	MaxTries      int           `yaml:"max_tries"`
	ProbeHeight   float64       `yaml:"probe_height"`
	ProbeDistance float64       `yaml:"probe_distance"`

	// ExcludeLayers are scene layers placement probes ignore.
	ExcludeLayers []string `yaml:"exclude_layers"`

	// MirrorEntities makes observers create local copies of mirrored entities.
	MirrorEntities bool `yaml:"mirror_entities"`
}

// Candidate is one spawnable kind.
type Candidate struct {
	ID     string `yaml:"id"`
	Chance int    `yaml:"chance"` // 0..100
}

// Zone is a named spawn area overriding the baseline candidates.
type Zone struct {
	Name       string       `yaml:"name"`
	Shape      string       `yaml:"shape"` // cuboid (default), cylinder or npoly in any case
	Nodes      [][2]float64 `yaml:"nodes"`
	MinY       float64      `yaml:"min_y"`
	MaxY       float64      `yaml:"max_y"`
	Radius     float64      `yaml:"radius"`
	Shelter    bool         `yaml:"shelter"`
	Candidates []Candidate  `yaml:"candidates"`
}

// Zones holds the baseline pool and the zone list.
type Zones struct {
	Baseline []Candidate `yaml:"baseline"`
	Zones    []Zone      `yaml:"zones"`
}

// Terrain configures the procedural heightfield.
type Terrain struct {
	Seed        int64   `yaml:"seed"`
	BaseHeight  float64 `yaml:"base_height"`
	Amplitude   float64 `yaml:"amplitude"`
	Frequency   float64 `yaml:"frequency"`
	Octaves     int     `yaml:"octaves"`
	Persistence float64 `yaml:"persistence"`
}

// Box is an axis-aligned solid in the scene.
type Box struct {
	Min   [3]float64 `yaml:"min"`
	Max   [3]float64 `yaml:"max"`
	Layer string     `yaml:"layer"` // defaults to structure
}

// Scene describes the probe-able world.
type Scene struct {
	Terrain    Terrain  `yaml:"terrain"`
	WaterLevel *float64 `yaml:"water_level"` // nil = no water
	Boxes      []Box    `yaml:"boxes"`
}

// Network configures the sync transport.
type Network struct {
	HostURL  string `yaml:"host_url"` // observer: ws URL of the host
	Name     string `yaml:"name"`
	Password string `yaml:"password"`

	// PasswordHash is the bcrypt hash the host checks; empty = open session.
	PasswordHash string `yaml:"password_hash"`

	SendQueueSize    int           `yaml:"send_queue_size"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	InboundRate      float64       `yaml:"inbound_rate"` // frames/s per peer
	InboundBurst     int           `yaml:"inbound_burst"`
	ReportInterval   time.Duration `yaml:"report_interval"`
	Debug            bool          `yaml:"debug"`
}

// HTTP configures the API server.
type HTTP struct {
	Enabled     bool     `yaml:"enabled"`
	BindAddress string   `yaml:"bind_address"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port.
func (h HTTP) Addr() string {
	return fmt.Sprintf("%s:%d", h.BindAddress, h.Port)
}

// Journal configures the on-disk event journal.
type Journal struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"` // records buffered ahead of the disk
}

// Agent configures the local demo agent.
type Agent struct {
	Enabled bool          `yaml:"enabled"`
	Name    string        `yaml:"name"`
	Start   [3]float64    `yaml:"start"`
	Speed   float64       `yaml:"speed"`
	Tick    time.Duration `yaml:"tick"`
	Bound   float64       `yaml:"bound"`
	Reach   float64       `yaml:"reach"` // pickup distance, 0 = off
}

// Stage gates spawning on a world progress value growing over time.
type Stage struct {
	Enabled bool    `yaml:"enabled"`
	Initial float64 `yaml:"initial"`
	Rate    float64 `yaml:"rate"` // per second
	Start   float64 `yaml:"start"`
	End     float64 `yaml:"end"`
}

// Default returns config with sensible defaults.
func Default() Populace {
	pd := population.DefaultConfig()
	hub := messaging.DefaultHubConfig()
	return Populace{
		LogLevel: "info",
		Role:     "unconnected",
		Population: Population{
			Radius:        pd.Radius,
			Step:          pd.Step,
			Interval:      pd.Interval,
			MaxEntities:   pd.MaxEntities,
			MaxTries:      pd.MaxTries,
			ProbeHeight:   pd.ProbeHeight,
			ProbeDistance: pd.ProbeDistance,
			ExcludeLayers: []string{"water"},
		},
		Zones: Zones{
			Baseline: []Candidate{
				{ID: "rock", Chance: 60},
				{ID: "shrub", Chance: 30},
				{ID: "crystal", Chance: 5},
			},
		},
		Scene: Scene{
			Terrain: Terrain{
				Seed:        1,
				BaseHeight:  0,
				Amplitude:   4,
				Frequency:   0.02,
				Octaves:     4,
				Persistence: 0.5,
			},
		},
		Network: Network{
			Name:             "populace",
			SendQueueSize:    hub.SendQueueSize,
			WriteTimeout:     hub.WriteTimeout,
			ReadTimeout:      hub.ReadTimeout,
			HandshakeTimeout: hub.HandshakeTimeout,
			InboundRate:      hub.InboundRate,
			InboundBurst:     hub.InboundBurst,
			ReportInterval:   time.Second,
		},
		HTTP: HTTP{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        8090,
		},
		Journal: Journal{Dir: "journal", QueueSize: 1024},
		Agent: Agent{
			Enabled: true,
			Name:    "local",
			Speed:   3,
			Tick:    100 * time.Millisecond,
			Bound:   200,
		},
	}
}

// Path returns the config path, honoring POPULACE_CONFIG.
func Path() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load loads config from a YAML file and validates it.
// If the file doesn't exist, returns defaults.
func Load(path string) (Populace, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the parts of the config that are not validated by the
// components they build.
func (c Populace) Validate() error {
	role, err := c.ParseRole()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if role == messaging.RoleObserver && c.Network.HostURL == "" {
		return fmt.Errorf("%w: observer role needs network.host_url", ErrInvalid)
	}
	if _, err := c.PopulationConfig(); err != nil {
		return err
	}
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return fmt.Errorf("%w: http.port %d", ErrInvalid, c.HTTP.Port)
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("%w: journal.dir is empty", ErrInvalid)
	}
	if c.Journal.QueueSize < 0 {
		return fmt.Errorf("%w: journal.queue_size is negative", ErrInvalid)
	}
	if c.Stage.Enabled && c.Stage.End < c.Stage.Start {
		return fmt.Errorf("%w: stage.end %.2f < stage.start %.2f", ErrInvalid, c.Stage.End, c.Stage.Start)
	}
	for _, b := range c.Scene.Boxes {
		if _, err := boxLayer(b); err != nil {
			return err
		}
	}
	return nil
}

// ParseRole returns the configured starting role.
func (c Populace) ParseRole() (messaging.Role, error) {
	return messaging.ParseRole(c.Role)
}

// PopulationConfig converts the population section.
func (c Populace) PopulationConfig() (population.Config, error) {
	excluded, err := scene.ParseLayers(c.Population.ExcludeLayers)
	if err != nil {
		return population.Config{}, fmt.Errorf("%w: population.exclude_layers: %v", ErrInvalid, err)
	}

	pc := population.Config{
		Radius:        c.Population.Radius,
		Step:          c.Population.Step,
		Interval:      c.Population.Interval,
		MaxEntities:   c.Population.MaxEntities,
		MaxTries:      c.Population.MaxTries,
		ProbeHeight:   c.Population.ProbeHeight,
		ProbeDistance: c.Population.ProbeDistance,
		Mask:          scene.Excluding(excluded),
	}
	if err := pc.Validate(); err != nil {
		return population.Config{}, err
	}
	return pc, nil
}

// HubConfig converts the network section for the host transport.
func (c Populace) HubConfig() messaging.HubConfig {
	return messaging.HubConfig{
		SendQueueSize:    c.Network.SendQueueSize,
		WriteTimeout:     c.Network.WriteTimeout,
		ReadTimeout:      c.Network.ReadTimeout,
		HandshakeTimeout: c.Network.HandshakeTimeout,
		InboundRate:      c.Network.InboundRate,
		InboundBurst:     c.Network.InboundBurst,
		PasswordHash:     c.Network.PasswordHash,
	}
}

// ClientConfig converts the network section for the observer transport.
func (c Populace) ClientConfig() messaging.ClientConfig {
	return messaging.ClientConfig{
		Name:             c.Network.Name,
		Password:         c.Network.Password,
		SendQueueSize:    c.Network.SendQueueSize,
		WriteTimeout:     c.Network.WriteTimeout,
		HandshakeTimeout: c.Network.HandshakeTimeout,
	}
}

// BuildRegistry creates the zone registry. A repeated zone name keeps the
// first definition.
func (c Populace) BuildRegistry() (*zone.Registry, error) {
	reg, err := zone.NewRegistry(candidates(c.Zones.Baseline))
	if err != nil {
		return nil, fmt.Errorf("building baseline pool: %w", err)
	}

	for _, zc := range c.Zones.Zones {
		z, err := zone.New(zone.Spec{
			Name:       zc.Name,
			Shape:      zc.Shape,
			Nodes:      zc.Nodes,
			MinY:       zc.MinY,
			MaxY:       zc.MaxY,
			Radius:     zc.Radius,
			Shelter:    zc.Shelter,
			Candidates: candidates(zc.Candidates),
		})
		if err != nil {
			return nil, err
		}
		if _, err := reg.Register(z); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuildScene creates the probe-able world: terrain, optional water plane
// and boxes.
func (c Populace) BuildScene() (*scene.World, *scene.Terrain, error) {
	t := c.Scene.Terrain
	terrain := scene.NewTerrain(scene.TerrainConfig{
		Seed:        t.Seed,
		BaseHeight:  t.BaseHeight,
		Amplitude:   t.Amplitude,
		Frequency:   t.Frequency,
		Octaves:     t.Octaves,
		Persistence: t.Persistence,
	})

	w := scene.NewWorld(terrain)
	if c.Scene.WaterLevel != nil {
		w.Add(scene.NewPlane(*c.Scene.WaterLevel, scene.LayerWater))
	}
	for _, b := range c.Scene.Boxes {
		layer, err := boxLayer(b)
		if err != nil {
			return nil, nil, err
		}
		w.Add(scene.NewBox(mgl64.Vec3(b.Min), mgl64.Vec3(b.Max), layer))
	}
	return w, terrain, nil
}

func boxLayer(b Box) (scene.Layer, error) {
	if b.Layer == "" {
		return scene.LayerStructure, nil
	}
	l, err := scene.ParseLayers([]string{b.Layer})
	if err != nil {
		return 0, fmt.Errorf("%w: scene box layer: %v", ErrInvalid, err)
	}
	return l, nil
}

func candidates(list []Candidate) []zone.Candidate {
	out := make([]zone.Candidate, 0, len(list))
	for _, c := range list {
		out = append(out, zone.Candidate{ID: c.ID, Chance: c.Chance})
	}
	return out
}
