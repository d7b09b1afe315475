// Command validate provides a small CLI that validates course profiles in a
// directory (default ../configs). Every JSON, YAML and TOML file is checked:
//   - the file parses and its fields decode into a course
//   - tuning, spawn and terrain pass course validation
//   - every terrain surface builds
//   - the spawn point has ground beneath it
//   - the car can reach the braking threshold, so tire marks can be laid
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wricardo/mcp-training/drivesim/game/config"
	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// Errors holds the problems found; Info holds "✓" lines describing what passed.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
	Info   []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) pass(format string, args ...any) {
	r.Info = append(r.Info, "✓ "+fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single course file
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	c, err := config.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			result.fail("Invalid course: %v", err)
		} else {
			result.fail("Failed to read file: %v", err)
		}
		return result
	}
	result.pass("%s: %d terrain surfaces", c.Name, len(c.Terrain))

	v, _, err := c.NewVehicle(time.Unix(0, 0))
	if err != nil {
		result.fail("Failed to build course: %v", err)
		return result
	}

	if v.GroundFound() {
		result.pass("Spawn is on the ground at height %.2f", v.State().Position.Y())
	} else {
		p := c.Spawn.Position
		result.fail("No ground beneath spawn point (%.1f, %.1f, %.1f)", p.X(), p.Y(), p.Z())
	}

	top := engine.TerminalSpeed(c.Tuning)
	if top <= c.Tuning.BrakingSpeedThreshold {
		result.fail("Top speed %.2f never exceeds the braking threshold %.2f", top, c.Tuning.BrakingSpeedThreshold)
	} else {
		result.pass("Top speed %.2f, tire marks above %.2f", top, c.Tuning.BrakingSpeedThreshold)
	}

	return result
}

// courseFiles lists every course file in dir, sorted by name
func courseFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	var files []string
	for _, ext := range config.Extensions {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// report validates every course in dir, prints the results to w and reports
// whether all of them are valid
func report(w io.Writer, dir string) (bool, error) {
	files, err := courseFiles(dir)
	if err != nil {
		return false, fmt.Errorf("error finding course files: %w", err)
	}
	if len(files) == 0 {
		return false, fmt.Errorf("no course files in %s", dir)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
		} else {
			fmt.Fprintln(w, "❌ INVALID")
			allValid = false
		}
		for _, info := range result.Info {
			fmt.Fprintln(w, "  "+info)
		}
		for _, err := range result.Errors {
			fmt.Fprintln(w, "  ❌ "+err)
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All courses are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some courses have errors")
	}
	return allValid, nil
}

// main validates the directory given as the first argument, exiting with
// non-zero status if any course is invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	ok, err := report(os.Stdout, configDir)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}
