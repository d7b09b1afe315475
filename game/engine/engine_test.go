package engine

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

var _ Engine = (*Vehicle)(nil)

const frame = time.Second / 60

func newTestVehicle(t *testing.T, spawn Pose, ground []Collidable) *Vehicle {
	t.Helper()
	v, err := NewVehicle(DefaultTuning(), spawn, trailEpoch, ground)
	if err != nil {
		t.Fatalf("NewVehicle: %v", err)
	}
	return v
}

func TestNewVehicleSnapsToGround(t *testing.T) {
	ground := []Collidable{flatAt(5)}
	v := newTestVehicle(t, Pose{Position: mgl64.Vec3{10, 0, 10}, Rotation: 0.4}, ground)

	state := v.State()
	if want := 5 + DefaultTuning().BodyHeight; math.Abs(state.Position.Y()-want) > 1e-12 {
		t.Errorf("spawn y = %v, want %v", state.Position.Y(), want)
	}
	if state.Rotation != 0.4 {
		t.Errorf("spawn rotation = %v", state.Rotation)
	}
	if !v.Snapshot().GroundFound {
		t.Error("Expected ground to be found at spawn")
	}
}

func TestNewVehicleWithoutGroundKeepsSpawnHeight(t *testing.T) {
	v := newTestVehicle(t, Pose{Position: mgl64.Vec3{0, 30, 0}}, nil)
	if v.State().Position.Y() != 30 {
		t.Errorf("spawn y = %v, want 30", v.State().Position.Y())
	}
}

func TestNewVehicleRejectsInvalidTuning(t *testing.T) {
	tuning := DefaultTuning()
	tuning.TrailCapacity = 0
	if _, err := NewVehicle(tuning, Pose{}, trailEpoch, nil); err == nil {
		t.Fatal("Expected error for zero trail capacity")
	}
}

func TestTickAbsentGroundKeepsVerticalState(t *testing.T) {
	v := newTestVehicle(t, Pose{}, nil)
	err := v.Restore(SavedVehicle{
		State: VehicleState{
			Velocity:         mgl64.Vec2{0, -8},
			Position:         mgl64.Vec3{1, 7.3, 2},
			VerticalVelocity: 0.4,
		},
		Clock: trailEpoch,
	})
	if err != nil {
		t.Fatal(err)
	}

	out := v.Tick(ControlInput{Forward: true}, frame, nil)
	if out.Ground.Found {
		t.Fatal("Expected ground to be absent")
	}
	if out.State.Position.Y() != 7.3 {
		t.Errorf("y = %v, want exactly 7.3", out.State.Position.Y())
	}
	if out.State.VerticalVelocity != 0.4 {
		t.Errorf("vertical velocity = %v, want exactly 0.4", out.State.VerticalVelocity)
	}
	if out.State.Position.Z() == 2 {
		t.Error("horizontal motion should still be integrated")
	}
}

func TestTickFollowsTerrain(t *testing.T) {
	low := flatAt(0)
	v := newTestVehicle(t, Pose{}, []Collidable{low})
	start := v.State().Position.Y()

	// The ground rises by 4 units; the car eases up without overshooting.
	high := []Collidable{flatAt(4)}
	target := 4 + DefaultTuning().BodyHeight
	prev := start
	for i := 0; i < 60; i++ {
		out := v.Tick(ControlInput{}, frame, high)
		y := out.State.Position.Y()
		if y < prev-1e-12 || y > target+1e-9 {
			t.Fatalf("tick %d: y=%v (prev %v, target %v)", i, y, prev, target)
		}
		prev = y
	}
	if math.Abs(prev-target) > 0.01 {
		t.Errorf("after 60 ticks y = %v, want about %v", prev, target)
	}
}

func TestTickClockAndMarks(t *testing.T) {
	ground := []Collidable{flatAt(0)}
	v := newTestVehicle(t, Pose{}, ground)
	saved := v.Save()
	saved.State.Velocity = mgl64.Vec2{0, -50}
	if err := v.Restore(saved); err != nil {
		t.Fatal(err)
	}

	// Brake from full speed with 10ms frames; the car stays above the
	// braking threshold for all 12 frames.
	marks := 0
	for i := 0; i < 12; i++ {
		out := v.Tick(ControlInput{Backward: true}, 10*time.Millisecond, ground)
		if out.Mark != nil {
			marks++
			if !out.Mark.Timestamp.Equal(v.Clock()) {
				t.Errorf("mark stamped %v, clock %v", out.Mark.Timestamp, v.Clock())
			}
			if out.Mark.Rotation != out.State.Rotation {
				t.Errorf("mark rotation %v differs from state rotation %v", out.Mark.Rotation, out.State.Rotation)
			}
		}
	}
	// Marks at 10, 60 and 110 ms.
	if marks != 3 || v.Trail().Len() != 3 {
		t.Errorf("got %d marks (%d in trail), want 3", marks, v.Trail().Len())
	}

	wantClock := trailEpoch.Add(120 * time.Millisecond)
	if !v.Clock().Equal(wantClock) {
		t.Errorf("clock = %v, want %v", v.Clock(), wantClock)
	}
	if v.Ticks() != 12 {
		t.Errorf("ticks = %d, want 12", v.Ticks())
	}
}

func TestTickReportsSpeedCap(t *testing.T) {
	v := newTestVehicle(t, Pose{}, nil)
	out := v.Tick(ControlInput{Forward: true}, time.Second, nil)
	if out.SpeedCapped {
		t.Error("one second of throttle from rest stays below the cap")
	}
	if math.Abs(out.TimeScale-60) > 1e-9 {
		t.Errorf("time scale = %v, want 60", out.TimeScale)
	}

	out = v.Tick(ControlInput{Forward: true}, time.Second, nil)
	if !out.SpeedCapped {
		t.Error("Expected a second one-second frame of throttle to hit the speed cap")
	}
}

func TestResetReturnsToSpawn(t *testing.T) {
	ground := []Collidable{flatAt(1)}
	spawn := Pose{Position: mgl64.Vec3{5, 0, 5}, Rotation: 1}
	v := newTestVehicle(t, spawn, ground)

	for i := 0; i < 30; i++ {
		v.Tick(ControlInput{Forward: true, TurnLeft: true}, frame, ground)
	}
	for i := 0; i < 20; i++ {
		v.Tick(ControlInput{Backward: true}, frame*4, ground)
	}
	if v.Trail().Len() == 0 {
		t.Fatal("Expected marks before reset")
	}
	clock := v.Clock()

	state := v.Reset(ground)
	if state.Position.X() != 5 || state.Position.Z() != 5 || state.Rotation != 1 {
		t.Errorf("reset state = %+v", state)
	}
	if state.Speed() != 0 || state.AngularVelocity != 0 {
		t.Errorf("reset left motion: speed %v yaw rate %v", state.Speed(), state.AngularVelocity)
	}
	if v.Trail().Len() != 0 {
		t.Errorf("trail not cleared: %d marks", v.Trail().Len())
	}
	if !v.Clock().Equal(clock) {
		t.Error("reset should not rewind the clock")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ground := []Collidable{flatAt(0)}
	v := newTestVehicle(t, Pose{}, ground)
	for i := 0; i < 40; i++ {
		v.Tick(ControlInput{Forward: true}, frame, ground)
	}
	for i := 0; i < 10; i++ {
		v.Tick(ControlInput{Backward: true}, 100*time.Millisecond, ground)
	}

	snap := v.Snapshot()
	if len(snap.Trail) == 0 {
		t.Fatal("Expected marks in snapshot")
	}
	snap.Trail[0].Rotation = 123
	if v.Snapshot().Trail[0].Rotation == 123 {
		t.Error("snapshot trail aliases the vehicle's trail")
	}
	if snap.Speed != snap.State.Speed() {
		t.Errorf("snapshot speed %v differs from state speed %v", snap.Speed, snap.State.Speed())
	}
}

func TestSnapshotHeadingIsWrapped(t *testing.T) {
	v := newTestVehicle(t, Pose{Rotation: 7 * math.Pi}, nil)
	snap := v.Snapshot()
	if snap.State.Rotation != 7*math.Pi {
		t.Errorf("rotation should stay unwrapped, got %v", snap.State.Rotation)
	}
	if snap.Heading < -math.Pi || snap.Heading > math.Pi {
		t.Errorf("heading %v outside [-pi, pi]", snap.Heading)
	}
}

func TestSaveRestore(t *testing.T) {
	ground := []Collidable{flatAt(0)}
	v := newTestVehicle(t, Pose{}, ground)
	for i := 0; i < 40; i++ {
		v.Tick(ControlInput{Forward: true, TurnRight: true}, frame, ground)
	}
	for i := 0; i < 5; i++ {
		v.Tick(ControlInput{Backward: true}, 100*time.Millisecond, ground)
	}
	saved := v.Save()

	other := newTestVehicle(t, Pose{}, ground)
	if err := other.Restore(saved); err != nil {
		t.Fatal(err)
	}
	if other.State() != v.State() {
		t.Errorf("state mismatch after restore")
	}
	if other.Trail().Len() != v.Trail().Len() || other.Trail().Total() != v.Trail().Total() {
		t.Errorf("trail mismatch after restore")
	}
	if other.Ticks() != v.Ticks() || !other.Clock().Equal(v.Clock()) {
		t.Errorf("clock mismatch after restore")
	}

	// Both continue identically.
	a := v.Tick(ControlInput{Forward: true}, frame, ground)
	b := other.Tick(ControlInput{Forward: true}, frame, ground)
	if a.State != b.State {
		t.Error("restored vehicle diverged")
	}

	if err := other.Restore(SavedVehicle{Ticks: -1}); err == nil {
		t.Error("Expected error for negative tick count")
	}
}
