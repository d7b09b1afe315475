// Package engine provides the vehicle simulation core.
//
// The engine package implements:
//   - A planar dynamics integrator (velocity, yaw, horizontal position)
//   - A downward ray ground query against caller-supplied collidables
//   - A damped-spring vertical suspension
//   - A bounded tire trail sampled while braking
//
// Core Types:
//
// Tuning is the immutable table of constants. Physics binds one Tuning and
// exposes the pure step functions. Vehicle implements the Engine interface and
// owns one car's state and trail, running a tick in the order dynamics,
// ground query, suspension, trail.
//
// Usage:
//
//	v, err := engine.NewVehicle(engine.DefaultTuning(), engine.Pose{}, time.Now(), ground)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	controls, _ := engine.ParseControls("wa")
//	out := v.Tick(controls, 16*time.Millisecond, ground)
//	fmt.Println(out.State.Position, v.Trail().Len())
//
// Time:
//
// Elapsed frame time is converted to a time scale of elapsed*ReferenceFPS, so a
// 60 FPS frame is exactly one tick. Acceleration and steering scale with it.
// Friction factors are applied once per tick unless TimeScaledFriction is set.
package engine
