package main

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/wricardo/mcp-training/drivesim/game/course"
)

func TestAnalyze_DefaultCourse(t *testing.T) {
	a, err := analyze("default", course.DefaultConfig())
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if math.Abs(a.TerminalSpeed-21.0167) > 1e-3 {
		t.Errorf("Expected terminal speed near 21.0167, got %.4f", a.TerminalSpeed)
	}

	if a.TicksTo90 < 60 || a.TicksTo90 > 90 {
		t.Errorf("Expected roughly 76 ticks to 90%% speed, got %d", a.TicksTo90)
	}

	if a.DistanceTo90 <= 0 || a.SecondsTo90 <= 0 {
		t.Errorf("Expected the car to cover ground, got %.2f units in %.2fs", a.DistanceTo90, a.SecondsTo90)
	}

	if a.SteerAtRest != 0.03 {
		t.Errorf("Expected full steer at rest, got %v", a.SteerAtRest)
	}

	expectedTop := 0.03 * (1 - (a.TerminalSpeed/50)*0.4)
	if math.Abs(a.SteerAtTop-expectedTop) > 1e-12 {
		t.Errorf("Expected steer %.6f at top speed, got %.6f", expectedTop, a.SteerAtTop)
	}

	if a.SettleRatio >= 1 {
		t.Errorf("Expected suspension to settle, ratio %.3f", a.SettleRatio)
	}

	if !a.SpawnGrounded || len(a.Warnings) != 0 {
		t.Errorf("Expected a clean course, got grounded=%v warnings=%v", a.SpawnGrounded, a.Warnings)
	}
}

func TestAnalyze_Warnings(t *testing.T) {
	c := course.DefaultConfig()
	c.Spawn.Position = mgl64.Vec3{1e6, 0, 1e6}
	c.Tuning.Acceleration = 0.1 // top speed 3.23, below the braking threshold

	a, err := analyze("far", c)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if a.SpawnGrounded {
		t.Error("Expected no ground far outside the course")
	}

	joined := strings.Join(a.Warnings, "\n")
	for _, want := range []string{"no ground", "braking threshold"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected warning containing %q, got %v", want, a.Warnings)
		}
	}
}

func TestPrintAnalysis(t *testing.T) {
	var buf bytes.Buffer
	printAnalysis(&buf, Analysis{
		ConfigID:      "x",
		Name:          "X",
		TerminalSpeed: 21.0167,
		TicksTo90:     76,
		Warnings:      []string{"spawn point has no ground beneath it"},
	})

	out := buf.String()
	for _, want := range []string{"config_id: x", "Time to 90%: 76 ticks", "WARNING: spawn point"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestRun_ShippedCourses(t *testing.T) {
	var buf bytes.Buffer
	if err := run(&buf, "../../configs"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"=== Analyzing classic.json ===", "=== Analyzing drift.yaml ===", "=== Analyzing hills.toml ==="} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output", want)
		}
	}
}

func TestRun_EmptyDirectory(t *testing.T) {
	if err := run(&bytes.Buffer{}, t.TempDir()); err == nil {
		t.Error("Expected error for a directory without courses")
	}
}
