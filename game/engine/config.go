package engine

import (
	"fmt"
	"math"
	"time"
)

// Tuning is the configuration table for one vehicle. It is treated as an
// immutable value: Physics copies it at construction.
type Tuning struct {
	// Movement
	MaxSpeed     float64 `json:"max_speed" mapstructure:"max_speed"`
	Acceleration float64 `json:"acceleration" mapstructure:"acceleration"`
	Deceleration float64 `json:"deceleration" mapstructure:"deceleration"` // applied when no pedal is held
	BrakeFactor  float64 `json:"brake_factor" mapstructure:"brake_factor"`

	// Steering
	MaxSteerAngle  float64 `json:"max_steer_angle" mapstructure:"max_steer_angle"`
	SteerSpeed     float64 `json:"steer_speed" mapstructure:"steer_speed"`
	SteerFriction  float64 `json:"steer_friction" mapstructure:"steer_friction"`
	MinSteerFactor float64 `json:"min_steer_factor" mapstructure:"min_steer_factor"` // at max speed
	MaxSteerFactor float64 `json:"max_steer_factor" mapstructure:"max_steer_factor"` // at rest

	// Grip and friction
	LateralFriction float64 `json:"lateral_friction" mapstructure:"lateral_friction"`
	ForwardFriction float64 `json:"forward_friction" mapstructure:"forward_friction"`

	// TimeScaledFriction raises the friction factors to the power of the tick's
	// time scale instead of applying them once per tick.
	TimeScaledFriction bool `json:"time_scaled_friction,omitempty" mapstructure:"time_scaled_friction"`

	// Body and ground query
	BodyHeight     float64 `json:"body_height" mapstructure:"body_height"`
	RayStartMargin float64 `json:"ray_start_margin" mapstructure:"ray_start_margin"`
	RayMaxDistance float64 `json:"ray_max_distance" mapstructure:"ray_max_distance"`

	// Suspension
	SpringStiffness   float64 `json:"spring_stiffness" mapstructure:"spring_stiffness"`
	Damping           float64 `json:"damping" mapstructure:"damping"`
	SuspensionMaxStep float64 `json:"suspension_max_step" mapstructure:"suspension_max_step"`

	// Tire trail
	TireWidth             float64 `json:"tire_width" mapstructure:"tire_width"`
	TrailCapacity         int     `json:"trail_capacity" mapstructure:"trail_capacity"`
	TrailIntervalMS       int     `json:"trail_interval_ms" mapstructure:"trail_interval_ms"`
	BrakingSpeedThreshold float64 `json:"braking_speed_threshold" mapstructure:"braking_speed_threshold"`

	// Timing
	ReferenceFPS      float64 `json:"reference_fps" mapstructure:"reference_fps"`
	BrakeSpeedEpsilon float64 `json:"brake_speed_epsilon" mapstructure:"brake_speed_epsilon"`
}

const (
	// ReverseAccelerationRatio is the share of Acceleration available in reverse.
	ReverseAccelerationRatio = 0.5

	// Validation limits
	MaxTrailCapacity = 10000
	MaxReferenceFPS  = 1000
)

// DefaultTuning returns the arcade tuning all cars share unless a course
// profile overrides it.
func DefaultTuning() Tuning {
	return Tuning{
		MaxSpeed:     50,
		Acceleration: 0.65,
		Deceleration: 0.96,
		BrakeFactor:  0.85,

		MaxSteerAngle:  0.03,
		SteerSpeed:     0.0015,
		SteerFriction:  0.93,
		MinSteerFactor: 0.6,
		MaxSteerFactor: 1.0,

		LateralFriction: 0.85,
		ForwardFriction: 0.97,

		BodyHeight:     2.26,
		RayStartMargin: 100,
		RayMaxDistance: 1000,

		SpringStiffness:   0.5,
		Damping:           1.5,
		SuspensionMaxStep: 1.0,

		TireWidth:             100,
		TrailCapacity:         200,
		TrailIntervalMS:       50,
		BrakingSpeedThreshold: 5,

		ReferenceFPS:      60,
		BrakeSpeedEpsilon: 0.01,
	}
}

// TrailInterval returns the minimum spacing between two tire marks.
func (t Tuning) TrailInterval() time.Duration {
	return time.Duration(t.TrailIntervalMS) * time.Millisecond
}

// TimeScale converts the elapsed frame time into the tick multiplier used by
// the integrator. One frame at ReferenceFPS yields exactly 1.
func (t Tuning) TimeScale(elapsed time.Duration) float64 {
	return elapsed.Seconds() * t.ReferenceFPS
}

// ValidateTuning checks that every constant is in a range the integrator and
// suspension model can work with.
func ValidateTuning(t *Tuning) error {
	if t == nil {
		return fmt.Errorf("tuning validation: tuning is required")
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"max_speed", t.MaxSpeed},
		{"acceleration", t.Acceleration},
		{"max_steer_angle", t.MaxSteerAngle},
		{"steer_speed", t.SteerSpeed},
		{"ray_start_margin", t.RayStartMargin},
		{"ray_max_distance", t.RayMaxDistance},
		{"spring_stiffness", t.SpringStiffness},
		{"suspension_max_step", t.SuspensionMaxStep},
		{"tire_width", t.TireWidth},
		{"reference_fps", t.ReferenceFPS},
	}
	for _, p := range positive {
		if !(p.value > 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("tuning validation: %s must be a positive finite number, got %v", p.name, p.value)
		}
	}

	// Per-tick multipliers must keep velocities from growing.
	factors := []struct {
		name  string
		value float64
	}{
		{"deceleration", t.Deceleration},
		{"brake_factor", t.BrakeFactor},
		{"steer_friction", t.SteerFriction},
		{"lateral_friction", t.LateralFriction},
		{"forward_friction", t.ForwardFriction},
	}
	for _, f := range factors {
		if f.value < 0 || f.value > 1 || math.IsNaN(f.value) {
			return fmt.Errorf("tuning validation: %s must be between 0 and 1, got %v", f.name, f.value)
		}
	}

	if t.MinSteerFactor < 0 || t.MaxSteerFactor <= 0 {
		return fmt.Errorf("tuning validation: steer factors must be positive, got min=%v max=%v", t.MinSteerFactor, t.MaxSteerFactor)
	}
	if t.MinSteerFactor >= t.MaxSteerFactor {
		return fmt.Errorf("tuning validation: min_steer_factor (%v) must be below max_steer_factor (%v)", t.MinSteerFactor, t.MaxSteerFactor)
	}
	if t.Damping < 0 || math.IsNaN(t.Damping) {
		return fmt.Errorf("tuning validation: damping must not be negative, got %v", t.Damping)
	}
	if t.BodyHeight < 0 || math.IsNaN(t.BodyHeight) {
		return fmt.Errorf("tuning validation: body_height must not be negative, got %v", t.BodyHeight)
	}
	if t.TrailCapacity < 1 || t.TrailCapacity > MaxTrailCapacity {
		return fmt.Errorf("tuning validation: trail_capacity must be between 1 and %d, got %d", MaxTrailCapacity, t.TrailCapacity)
	}
	if t.TrailIntervalMS < 0 {
		return fmt.Errorf("tuning validation: trail_interval_ms must not be negative, got %d", t.TrailIntervalMS)
	}
	if t.BrakingSpeedThreshold < 0 || t.BrakeSpeedEpsilon < 0 {
		return fmt.Errorf("tuning validation: speed thresholds must not be negative")
	}
	if t.ReferenceFPS > MaxReferenceFPS {
		return fmt.Errorf("tuning validation: reference_fps must be at most %d, got %v", MaxReferenceFPS, t.ReferenceFPS)
	}

	return nil
}
