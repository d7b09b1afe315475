package engine

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Engine provides the main interface for driving one vehicle
type Engine interface {
	// Simulation
	Tick(controls ControlInput, elapsed time.Duration, ground []Collidable) TickOutcome
	Reset(ground []Collidable) VehicleState

	// State access
	State() VehicleState
	Snapshot() Snapshot
	Trail() Trail
	Clock() time.Time
	Ticks() int64

	// Persistence
	Restore(data SavedVehicle) error
	Save() SavedVehicle

	// Configuration
	Tuning() Tuning
	Spawn() Pose
}

// Pose is a spawn location and heading
type Pose struct {
	Position mgl64.Vec3 `json:"position" mapstructure:"position"`
	Rotation float64    `json:"rotation" mapstructure:"rotation"`
}

// TickOutcome describes what happened during one tick
type TickOutcome struct {
	State       VehicleState  `json:"state"`
	Ground      TerrainSample `json:"ground"`
	TimeScale   float64       `json:"time_scale"`
	SpeedCapped bool          `json:"speed_capped"`
	Mark        *TireMark     `json:"mark,omitempty"`
}

// SavedVehicle is everything needed to resume a vehicle later
type SavedVehicle struct {
	State       VehicleState `json:"state"`
	Trail       TrailState   `json:"trail"`
	Clock       time.Time    `json:"clock"`
	Ticks       int64        `json:"ticks"`
	GroundFound bool         `json:"ground_found"`
}

// Vehicle implements the Engine interface. It owns the state and the trail and
// threads them through the pure step functions in a fixed order: dynamics,
// ground query, suspension, trail.
type Vehicle struct {
	physics     *Physics
	spawn       Pose
	state       VehicleState
	trail       Trail
	clock       time.Time
	ticks       int64
	groundFound bool
}

// NewVehicle creates a vehicle at spawn with a simulated clock starting at
// start. The car is placed on the ground when ground is non-empty.
func NewVehicle(tuning Tuning, spawn Pose, start time.Time, ground []Collidable) (*Vehicle, error) {
	physics, err := NewPhysics(tuning)
	if err != nil {
		return nil, err
	}

	v := &Vehicle{
		physics: physics,
		spawn:   spawn,
		trail:   NewTrail(tuning),
		clock:   start,
	}
	v.place(ground)
	return v, nil
}

// place puts the car at its spawn pose, snapped to the ground if any is found
func (v *Vehicle) place(ground []Collidable) {
	v.state = VehicleState{
		Position: v.spawn.Position,
		Rotation: v.spawn.Rotation,
	}
	v.groundFound = false
	if len(ground) == 0 {
		return
	}
	sample := v.physics.GroundHeight(v.state.Position, ground, v.physics.tuning.RayMaxDistance)
	if sample.Found {
		v.state.Position[1] = sample.Elevation
		v.groundFound = true
	}
}

// Tick runs one simulation step. The simulated clock advances by elapsed and
// marks are stamped with it.
func (v *Vehicle) Tick(controls ControlInput, elapsed time.Duration, ground []Collidable) TickOutcome {
	p := v.physics
	ts := p.tuning.TimeScale(elapsed)

	next, capped := p.step(v.state, controls, ts)

	sample := p.GroundHeight(next.Position, ground, p.tuning.RayMaxDistance)
	if sample.Found {
		next.Position[1], next.VerticalVelocity = p.StepSuspension(next.Position.Y(), sample.Elevation, next.VerticalVelocity, ts)
	}

	v.clock = v.clock.Add(elapsed)
	v.ticks++

	before := v.trail.Total()
	v.trail = v.trail.MaybeAppend(next, controls, v.clock)
	v.state = next
	v.groundFound = sample.Found

	out := TickOutcome{
		State:       next,
		Ground:      sample,
		TimeScale:   ts,
		SpeedCapped: capped,
	}
	if v.trail.Total() != before {
		if mark, ok := v.trail.Last(); ok {
			out.Mark = &mark
		}
	}
	return out
}

// Reset returns the car to its spawn pose and clears the trail. The clock
// and tick counter keep running.
func (v *Vehicle) Reset(ground []Collidable) VehicleState {
	v.place(ground)
	v.trail = v.trail.Cleared()
	return v.state
}

// State returns the current vehicle state
func (v *Vehicle) State() VehicleState {
	return v.state
}

// Trail returns the current trail
func (v *Vehicle) Trail() Trail {
	return v.trail
}

// Clock returns the simulated time
func (v *Vehicle) Clock() time.Time {
	return v.clock
}

// Ticks returns the number of ticks run since creation
func (v *Vehicle) Ticks() int64 {
	return v.ticks
}

// GroundFound reports whether the last ground query hit anything
func (v *Vehicle) GroundFound() bool {
	return v.groundFound
}

// Tuning returns the vehicle's tuning
func (v *Vehicle) Tuning() Tuning {
	return v.physics.Tuning()
}

// Physics returns the step functions bound to this vehicle's tuning
func (v *Vehicle) Physics() *Physics {
	return v.physics
}

// Spawn returns the spawn pose used by Reset
func (v *Vehicle) Spawn() Pose {
	return v.spawn
}

// Snapshot returns a copy of everything a presentation layer reads
func (v *Vehicle) Snapshot() Snapshot {
	return Snapshot{
		State:       v.state,
		Trail:       v.trail.Marks(),
		Clock:       v.clock,
		Ticks:       v.ticks,
		Speed:       v.state.Speed(),
		Heading:     WrapAngle(v.state.Rotation),
		GroundFound: v.groundFound,
	}
}

// Save returns the persisted form of the vehicle
func (v *Vehicle) Save() SavedVehicle {
	return SavedVehicle{
		State:       v.state,
		Trail:       v.trail.State(),
		Clock:       v.clock,
		Ticks:       v.ticks,
		GroundFound: v.groundFound,
	}
}

// Restore replaces the vehicle's state with previously saved data (used for
// persistence loading)
func (v *Vehicle) Restore(data SavedVehicle) error {
	if data.Ticks < 0 {
		return fmt.Errorf("restore vehicle: negative tick count %d", data.Ticks)
	}
	v.state = data.State
	v.trail = RestoreTrail(v.physics.tuning, data.Trail)
	v.clock = data.Clock
	v.ticks = data.Ticks
	v.groundFound = data.GroundFound
	return nil
}
