package course

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

// Terrain types accepted in a TerrainSpec
const (
	TerrainPlane       = "plane"
	TerrainBox         = "box"
	TerrainTriangles   = "triangles"
	TerrainHeightfield = "heightfield"
	TerrainWave        = "wave"
)

// DefaultTrailFadeMS is how long a tire mark takes to fade out when a course
// does not say otherwise
const DefaultTrailFadeMS = 10000

// TerrainSpec describes one collidable surface. Which fields are read depends
// on Type.
type TerrainSpec struct {
	Type string `json:"type" mapstructure:"type"`
	Name string `json:"name,omitempty" mapstructure:"name"`

	// plane
	Height     float64 `json:"height,omitempty" mapstructure:"height"`
	HalfExtent float64 `json:"half_extent,omitempty" mapstructure:"half_extent"`

	// box
	Min mgl64.Vec3 `json:"min,omitempty" mapstructure:"min"`
	Max mgl64.Vec3 `json:"max,omitempty" mapstructure:"max"`

	// triangles: every three vertices form one triangle
	Vertices []mgl64.Vec3 `json:"vertices,omitempty" mapstructure:"vertices"`

	// heightfield
	Origin   mgl64.Vec3  `json:"origin,omitempty" mapstructure:"origin"`
	CellSize float64     `json:"cell_size,omitempty" mapstructure:"cell_size"`
	Heights  [][]float64 `json:"heights,omitempty" mapstructure:"heights"`

	// wave
	Amplitude  float64 `json:"amplitude,omitempty" mapstructure:"amplitude"`
	Wavelength float64 `json:"wavelength,omitempty" mapstructure:"wavelength"`
}

// Config is one course profile: the car's tuning, where it spawns and the
// terrain it drives on
type Config struct {
	Name        string        `json:"name" mapstructure:"name"`
	Description string        `json:"description" mapstructure:"description"`
	Tuning      engine.Tuning `json:"tuning" mapstructure:"tuning"`
	Spawn       engine.Pose   `json:"spawn" mapstructure:"spawn"`
	Terrain     []TerrainSpec `json:"terrain" mapstructure:"terrain"`
	TrailFadeMS int           `json:"trail_fade_ms" mapstructure:"trail_fade_ms"`
}

// DefaultConfig returns a flat, bounded course with default tuning
func DefaultConfig() *Config {
	return &Config{
		Name:        "default",
		Description: "Flat 5000x5000 ground plane with default tuning",
		Tuning:      engine.DefaultTuning(),
		Terrain: []TerrainSpec{
			{Type: TerrainPlane, Name: "ground", Height: 0, HalfExtent: 2500},
		},
		TrailFadeMS: DefaultTrailFadeMS,
	}
}

// ValidateConfig checks the tuning, the spawn and every terrain spec
func ValidateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config validation: config is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if err := engine.ValidateTuning(&c.Tuning); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	for i, v := range c.Spawn.Position {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("config validation: spawn position component %d is not finite", i)
		}
	}
	if c.TrailFadeMS < 0 {
		return fmt.Errorf("config validation: trail_fade_ms must not be negative, got %d", c.TrailFadeMS)
	}
	if len(c.Terrain) == 0 {
		return fmt.Errorf("config validation: at least one terrain surface is required")
	}
	for i := range c.Terrain {
		if _, err := c.Terrain[i].Build(); err != nil {
			return fmt.Errorf("config validation: terrain %d: %w", i, err)
		}
	}
	return nil
}

// Build turns the spec into a collidable
func (s TerrainSpec) Build() (engine.Collidable, error) {
	switch strings.ToLower(s.Type) {
	case TerrainPlane:
		if s.HalfExtent < 0 {
			return nil, fmt.Errorf("plane: half_extent must not be negative")
		}
		return NewGroundPlane(s.Height, s.HalfExtent), nil

	case TerrainBox:
		for i := 0; i < 3; i++ {
			if s.Min[i] > s.Max[i] {
				return nil, fmt.Errorf("box: min %v exceeds max %v", s.Min, s.Max)
			}
		}
		return Box{Min: s.Min, Max: s.Max}, nil

	case TerrainTriangles:
		if len(s.Vertices) == 0 || len(s.Vertices)%3 != 0 {
			return nil, fmt.Errorf("triangles: vertex count must be a positive multiple of 3, got %d", len(s.Vertices))
		}
		tris := make([]Triangle, 0, len(s.Vertices)/3)
		for i := 0; i < len(s.Vertices); i += 3 {
			tris = append(tris, Triangle{s.Vertices[i], s.Vertices[i+1], s.Vertices[i+2]})
		}
		return NewMesh(tris), nil

	case TerrainHeightfield:
		return NewHeightfield(s.Origin, s.CellSize, s.Heights)

	case TerrainWave:
		if s.Wavelength <= 0 {
			return nil, fmt.Errorf("wave: wavelength must be positive")
		}
		return WaveTerrain{Base: s.Height, Amplitude: s.Amplitude, Wavelength: s.Wavelength}, nil

	default:
		return nil, fmt.Errorf("unknown terrain type %q", s.Type)
	}
}

// Build returns the collidables for every terrain spec in the course
func (c *Config) Build() ([]engine.Collidable, error) {
	out := make([]engine.Collidable, 0, len(c.Terrain))
	for i, s := range c.Terrain {
		col, err := s.Build()
		if err != nil {
			return nil, fmt.Errorf("terrain %d (%s): %w", i, s.Name, err)
		}
		out = append(out, col)
	}
	return out, nil
}

// TrailFade returns the fade lifetime in milliseconds, falling back to the
// default when unset
func (c *Config) TrailFade() int {
	if c.TrailFadeMS == 0 {
		return DefaultTrailFadeMS
	}
	return c.TrailFadeMS
}

// NewVehicle builds the course terrain and a vehicle placed at the spawn pose
func (c *Config) NewVehicle(start time.Time) (*engine.Vehicle, []engine.Collidable, error) {
	ground, err := c.Build()
	if err != nil {
		return nil, nil, err
	}
	v, err := engine.NewVehicle(c.Tuning, c.Spawn, start, ground)
	if err != nil {
		return nil, nil, err
	}
	return v, ground, nil
}
