package engine

import "math"

// maxSuspensionSubsteps bounds the work done for a single oversized frame
const maxSuspensionSubsteps = 64

// StepSuspension pulls y toward targetY with a damped spring and returns the new
// height and vertical velocity. Large time scales are split into sub-steps no
// longer than SuspensionMaxStep so the explicit integration stays stable.
func (p *Physics) StepSuspension(y, targetY, verticalVelocity, timeScale float64) (float64, float64) {
	if timeScale <= 0 {
		return y, verticalVelocity
	}

	t := p.tuning
	steps := int(math.Ceil(timeScale / t.SuspensionMaxStep))
	if steps < 1 {
		steps = 1
	}
	if steps > maxSuspensionSubsteps {
		steps = maxSuspensionSubsteps
	}
	h := timeScale / float64(steps)

	for i := 0; i < steps; i++ {
		accel := t.SpringStiffness*(targetY-y) - t.Damping*verticalVelocity
		verticalVelocity += accel * h
		y += verticalVelocity * h
	}
	return y, verticalVelocity
}

// SettleRatio returns how much of a height error is left after one full tick
// (time scale 1) from rest. Values below 1 mean the error shrinks.
func (p *Physics) SettleRatio() float64 {
	y, _ := p.StepSuspension(1, 0, 0, 1)
	return math.Abs(y)
}
