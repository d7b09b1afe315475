// Command analyze prints quick, human-readable handling heuristics for the
// course profiles in a directory (default "configs"). For each course it
// reports the top speed reachable on throttle, how long the car takes to get
// close to it, how steering authority falls off with speed, how fast the
// suspension settles and whether the car spawns on the ground.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wricardo/mcp-training/drivesim/game/config"
	"github.com/wricardo/mcp-training/drivesim/game/course"
	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

// maxTicks bounds the throttle run used to time acceleration
const maxTicks = 10000

// Analysis summarizes one course profile
type Analysis struct {
	ConfigID      string
	Name          string
	TerrainCount  int
	MaxSpeed      float64
	TerminalSpeed float64

	// Straight-line throttle run from the spawn until 90% of TerminalSpeed.
	// TicksTo90 is -1 when the run never gets there.
	TicksTo90    int
	SecondsTo90  float64
	DistanceTo90 float64

	SteerAtRest float64
	SteerAtTop  float64
	SettleRatio float64

	SpawnGrounded bool
	SpawnHeight   float64

	Warnings []string
}

func main() {
	dir := "configs"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	if err := run(os.Stdout, dir); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, dir string) error {
	manager, err := config.NewManager(dir)
	if err != nil {
		return err
	}
	infos, err := manager.ListConfigs()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return fmt.Errorf("no valid courses in %s", dir)
	}

	for _, info := range infos {
		fmt.Fprintf(w, "\n=== Analyzing %s ===\n", info.Filename)
		c, err := manager.LoadConfig(info.ConfigID)
		if err != nil {
			fmt.Fprintf(w, "Error loading course: %v\n", err)
			continue
		}
		a, err := analyze(info.ConfigID, c)
		if err != nil {
			fmt.Fprintf(w, "Error building course: %v\n", err)
			continue
		}
		printAnalysis(w, a)
	}
	return nil
}

// analyze drives a fresh car straight ahead on the course and derives the
// handling figures
func analyze(id string, c *course.Config) (Analysis, error) {
	v, ground, err := c.NewVehicle(time.Unix(0, 0))
	if err != nil {
		return Analysis{}, err
	}
	t := v.Tuning()
	physics := v.Physics()

	a := Analysis{
		ConfigID:      id,
		Name:          c.Name,
		TerrainCount:  len(c.Terrain),
		MaxSpeed:      t.MaxSpeed,
		TerminalSpeed: engine.TerminalSpeed(t),
		TicksTo90:     -1,
		SettleRatio:   physics.SettleRatio(),
		SpawnGrounded: v.GroundFound(),
		SpawnHeight:   v.State().Position.Y(),
	}
	a.SteerAtRest = physics.EffectiveMaxSteer(0)
	a.SteerAtTop = physics.EffectiveMaxSteer(a.TerminalSpeed)

	frame := time.Duration(float64(time.Second) / t.ReferenceFPS)
	throttle := engine.ControlInput{Forward: true}
	target := 0.9 * a.TerminalSpeed
	start := v.State().Position
	for i := 1; i <= maxTicks; i++ {
		out := v.Tick(throttle, frame, ground)
		if out.State.Speed() >= target {
			a.TicksTo90 = i
			a.SecondsTo90 = float64(i) * frame.Seconds()
			a.DistanceTo90 = out.State.Position.Sub(start).Len()
			break
		}
	}

	if !a.SpawnGrounded {
		a.Warnings = append(a.Warnings, "spawn point has no ground beneath it")
	}
	if a.TicksTo90 < 0 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("car never reaches 90%% of its top speed within %d ticks", maxTicks))
	}
	if a.SettleRatio >= 1 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("suspension does not settle (ratio %.3f)", a.SettleRatio))
	}
	if a.TerminalSpeed < t.BrakingSpeedThreshold {
		a.Warnings = append(a.Warnings, "top speed is below the braking threshold; no tire marks can be laid")
	}
	return a, nil
}

func printAnalysis(w io.Writer, a Analysis) {
	fmt.Fprintf(w, "Name: %s (config_id: %s)\n", a.Name, a.ConfigID)
	fmt.Fprintf(w, "Terrain Surfaces: %d\n", a.TerrainCount)
	fmt.Fprintf(w, "Max Speed: %.2f\n", a.MaxSpeed)
	fmt.Fprintf(w, "Top Speed on Throttle: %.4f\n", a.TerminalSpeed)
	if a.TicksTo90 >= 0 {
		fmt.Fprintf(w, "Time to 90%%: %d ticks (%.2fs), %.1f units\n", a.TicksTo90, a.SecondsTo90, a.DistanceTo90)
	}
	fmt.Fprintf(w, "Steer Limit: %.5f at rest, %.5f at top speed\n", a.SteerAtRest, a.SteerAtTop)
	fmt.Fprintf(w, "Suspension Settle Ratio: %.3f\n", a.SettleRatio)
	fmt.Fprintf(w, "Spawn Height: %.2f\n", a.SpawnHeight)

	if len(a.Warnings) == 0 {
		fmt.Fprintf(w, "✅ Course looks drivable\n")
		return
	}
	for _, warning := range a.Warnings {
		fmt.Fprintf(w, "⚠️  WARNING: %s\n", warning)
	}
}
