package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Physics holds one validated Tuning and runs the per-tick step functions
// against it. A Physics value has no mutable state and is safe to share.
type Physics struct {
	tuning Tuning
}

// NewPhysics validates the tuning and returns a Physics bound to a copy of it
func NewPhysics(tuning Tuning) (*Physics, error) {
	if err := ValidateTuning(&tuning); err != nil {
		return nil, err
	}
	return &Physics{tuning: tuning}, nil
}

// Tuning returns a copy of the bound tuning
func (p *Physics) Tuning() Tuning {
	return p.tuning
}

// EffectiveMaxSteer returns the yaw-rate limit at the given speed. It shrinks
// linearly from MaxSteerFactor at rest to MinSteerFactor at MaxSpeed.
func (p *Physics) EffectiveMaxSteer(speed float64) float64 {
	t := p.tuning
	return t.MaxSteerAngle * (t.MaxSteerFactor - (speed/t.MaxSpeed)*(t.MaxSteerFactor-t.MinSteerFactor))
}

// Heading returns the unit forward vector (x, z) for a yaw angle
func Heading(rotation float64) mgl64.Vec2 {
	return mgl64.Vec2{-math.Sin(rotation), -math.Cos(rotation)}
}

// Right returns the unit right vector (x, z) for a yaw angle
func Right(rotation float64) mgl64.Vec2 {
	return mgl64.Vec2{math.Cos(rotation), -math.Sin(rotation)}
}

// StepVehicle advances velocity, yaw and horizontal position by one tick.
// The input state is never modified.
func (p *Physics) StepVehicle(state VehicleState, controls ControlInput, timeScale float64) VehicleState {
	next, _ := p.step(state, controls, timeScale)
	return next
}

// step is StepVehicle that also reports whether the speed limit was hit
func (p *Physics) step(state VehicleState, controls ControlInput, timeScale float64) (VehicleState, bool) {
	t := p.tuning
	next := state

	speed := state.Speed()
	maxSteer := p.EffectiveMaxSteer(speed)

	switch {
	case controls.TurnLeft:
		next.AngularVelocity = math.Min(next.AngularVelocity+t.SteerSpeed*timeScale, maxSteer)
	case controls.TurnRight:
		next.AngularVelocity = math.Max(next.AngularVelocity-t.SteerSpeed*timeScale, -maxSteer)
	default:
		next.AngularVelocity *= p.friction(t.SteerFriction, timeScale)
	}

	next.Rotation += next.AngularVelocity

	heading := Heading(next.Rotation)
	if controls.Forward {
		next.Velocity = next.Velocity.Add(heading.Mul(t.Acceleration * timeScale))
	}
	if controls.Backward {
		next.Velocity = next.Velocity.Sub(heading.Mul(ReverseAccelerationRatio * t.Acceleration * timeScale))
	}

	// Tire grip only bleeds the sideways component.
	right := Right(next.Rotation)
	forward := next.Velocity.Dot(heading)
	lateral := next.Velocity.Dot(right) * p.friction(t.LateralFriction, timeScale)
	next.Velocity = heading.Mul(forward).Add(right.Mul(lateral))

	capped := false
	if s := next.Velocity.Len(); s > t.MaxSpeed {
		next.Velocity = next.Velocity.Mul(t.MaxSpeed / s)
		capped = true
	}

	switch {
	case controls.Backward && speed > t.BrakeSpeedEpsilon:
		next.Velocity = next.Velocity.Mul(p.friction(t.BrakeFactor, timeScale))
	case !controls.Forward && !controls.Backward:
		next.Velocity = next.Velocity.Mul(p.friction(t.Deceleration, timeScale))
	default:
		next.Velocity = next.Velocity.Mul(p.friction(t.ForwardFriction, timeScale))
	}

	next.Position = mgl64.Vec3{
		state.Position.X() + next.Velocity.X(),
		state.Position.Y(),
		state.Position.Z() + next.Velocity.Y(),
	}

	return next, capped
}

// friction returns the multiplier to apply this tick. By default it is the
// factor itself regardless of the time scale.
func (p *Physics) friction(factor, timeScale float64) float64 {
	if !p.tuning.TimeScaledFriction {
		return factor
	}
	return math.Pow(factor, timeScale)
}
