package engine

import (
	"math"
	"testing"
)

func TestStepSuspensionConverges(t *testing.T) {
	p := newTestPhysics(t)

	for _, ts := range []float64{0.5, 1, 2, 3.7} {
		y, vy := 10.0, 0.0
		prev := y
		for i := 0; i < 40; i++ {
			y, vy = p.StepSuspension(y, 0, vy, ts)
			if y < 0 {
				t.Fatalf("ts=%v tick %d: overshot target (y=%v)", ts, i, y)
			}
			if y > prev {
				t.Fatalf("ts=%v tick %d: moved away from target (%v -> %v)", ts, i, prev, y)
			}
			prev = y
		}
		if y > 0.05 {
			t.Errorf("ts=%v: still %v away from target after 40 ticks", ts, y)
		}
	}
}

func TestStepSuspensionSettlesWithinHandfulOfTicks(t *testing.T) {
	p := newTestPhysics(t)
	y, vy := 5.0, 0.0
	for i := 0; i < 5; i++ {
		y, vy = p.StepSuspension(y, 0, vy, 1)
	}
	// 1/8 of the error is left after 5 ticks, 1/32 after 10
	if math.Abs(y-0.625) > 1e-12 {
		t.Errorf("y after 5 ticks = %v, want 0.625", y)
	}
	for i := 0; i < 5; i++ {
		y, vy = p.StepSuspension(y, 0, vy, 1)
	}
	if math.Abs(y-0.15625) > 1e-12 {
		t.Errorf("y after 10 ticks = %v, want 0.15625", y)
	}

	// A 10 unit rise is within 1% after 13 ticks
	y, vy = 0, 0
	for i := 0; i < 13; i++ {
		y, vy = p.StepSuspension(y, 10, vy, 1)
	}
	if 10-y > 0.1 {
		t.Errorf("y after 13 ticks = %v, want within 0.1 of 10", y)
	}
}

func TestStepSuspensionSubsteps(t *testing.T) {
	p := newTestPhysics(t)

	y1, vy1 := p.StepSuspension(3, 0, 0, 1)
	y1, vy1 = p.StepSuspension(y1, 0, vy1, 1)

	y2, vy2 := p.StepSuspension(3, 0, 0, 2)

	if math.Abs(y1-y2) > 1e-12 || math.Abs(vy1-vy2) > 1e-12 {
		t.Errorf("one ts=2 step (%v, %v) differs from two ts=1 steps (%v, %v)", y2, vy2, y1, vy1)
	}
}

func TestStepSuspensionZeroTimeScale(t *testing.T) {
	p := newTestPhysics(t)
	y, vy := p.StepSuspension(7, 0, 0.5, 0)
	if y != 7 || vy != 0.5 {
		t.Errorf("zero time scale changed state to (%v, %v)", y, vy)
	}
}

func TestSettleRatio(t *testing.T) {
	p := newTestPhysics(t)
	if got := p.SettleRatio(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("SettleRatio = %v, want 0.5", got)
	}
}
