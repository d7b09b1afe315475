package engine

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// VehicleState is the full kinematic state of one car. It is a value type: every
// step returns a new VehicleState and never mutates the one it was given.
type VehicleState struct {
	// Velocity holds the horizontal velocity as (x, z). Vertical motion lives in
	// VerticalVelocity and is driven by the suspension model.
	Velocity         mgl64.Vec2 `json:"velocity"`
	AngularVelocity  float64    `json:"angular_velocity"` // yaw rate per tick
	Position         mgl64.Vec3 `json:"position"`
	Rotation         float64    `json:"rotation"` // yaw in radians, not wrapped
	VerticalVelocity float64    `json:"vertical_velocity"`
}

// Speed returns the horizontal speed in units per tick.
func (s VehicleState) Speed() float64 {
	return s.Velocity.Len()
}

// ControlInput is a snapshot of the four driving keys for a single tick.
type ControlInput struct {
	Forward   bool `json:"forward"`
	Backward  bool `json:"backward"`
	TurnLeft  bool `json:"turn_left"`
	TurnRight bool `json:"turn_right"`
}

// Idle reports whether no key is held.
func (c ControlInput) Idle() bool {
	return !c.Forward && !c.Backward && !c.TurnLeft && !c.TurnRight
}

// TerrainSample is the result of a ground query. Found is false when nothing
// was hit beneath the query point.
type TerrainSample struct {
	Elevation float64 `json:"elevation"`
	Found     bool    `json:"found"`
}

// TireMark is one skid-mark sample. Marks are never modified after creation.
type TireMark struct {
	LeftPosition  mgl64.Vec3 `json:"left_position"`
	RightPosition mgl64.Vec3 `json:"right_position"`
	Rotation      float64    `json:"rotation"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Opacity returns the display alpha of the mark at now, fading linearly from 1
// to 0 over lifetime. A non-positive lifetime never fades.
func (m TireMark) Opacity(now time.Time, lifetime time.Duration) float64 {
	if lifetime <= 0 {
		return 1
	}
	age := now.Sub(m.Timestamp)
	if age <= 0 {
		return 1
	}
	if age >= lifetime {
		return 0
	}
	return 1 - float64(age)/float64(lifetime)
}

// Snapshot is a read-only copy of everything a presentation layer needs after a
// tick: the vehicle state, the current trail, the simulated clock and the
// outcome of the last ground query.
type Snapshot struct {
	State       VehicleState `json:"state"`
	Trail       []TireMark   `json:"trail"`
	Clock       time.Time    `json:"clock"`
	Ticks       int64        `json:"ticks"`
	Speed       float64      `json:"speed"`
	Heading     float64      `json:"heading"` // Rotation wrapped to [-pi, pi]
	GroundFound bool         `json:"ground_found"`
}
