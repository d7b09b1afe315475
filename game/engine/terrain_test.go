package engine

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// flatAt is a horizontal plane at height y covering the whole world
func flatAt(y float64) Collidable {
	return CollidableFunc(func(ray Ray, far float64) []Hit {
		if ray.Direction.Y() == 0 {
			return nil
		}
		d := (y - ray.Origin.Y()) / ray.Direction.Y()
		if d < 0 || d > far {
			return nil
		}
		return []Hit{{Distance: d, Point: ray.At(d)}}
	})
}

func TestGroundHeightSingleSurface(t *testing.T) {
	p := newTestPhysics(t)
	sample := p.GroundHeight(mgl64.Vec3{5, 0, 5}, []Collidable{flatAt(-3)}, 1000)

	if !sample.Found {
		t.Fatal("Expected ground to be found")
	}
	if want := -3 + p.Tuning().BodyHeight; math.Abs(sample.Elevation-want) > 1e-12 {
		t.Errorf("elevation = %v, want %v", sample.Elevation, want)
	}
}

func TestGroundHeightPicksTopmostSurface(t *testing.T) {
	p := newTestPhysics(t)
	surfaces := []Collidable{flatAt(-10), flatAt(4), flatAt(1)}

	sample := p.GroundHeight(mgl64.Vec3{0, 0, 0}, surfaces, 1000)
	if !sample.Found {
		t.Fatal("Expected ground to be found")
	}
	if want := 4 + p.Tuning().BodyHeight; math.Abs(sample.Elevation-want) > 1e-12 {
		t.Errorf("elevation = %v, want %v", sample.Elevation, want)
	}
}

func TestGroundHeightRayStartsAboveCar(t *testing.T) {
	p := newTestPhysics(t)

	// A surface 50 units above the car is still below the ray origin.
	sample := p.GroundHeight(mgl64.Vec3{0, 0, 0}, []Collidable{flatAt(50)}, 1000)
	if !sample.Found {
		t.Fatal("Expected a surface below the ray origin to be found")
	}

	// A surface above the ray origin is not.
	sample = p.GroundHeight(mgl64.Vec3{0, 0, 0}, []Collidable{flatAt(150)}, 1000)
	if sample.Found {
		t.Errorf("Expected surface above the ray origin to be ignored, got %+v", sample)
	}
}

func TestGroundHeightAbsent(t *testing.T) {
	p := newTestPhysics(t)

	tests := []struct {
		name        string
		collidables []Collidable
		maxDistance float64
	}{
		{"no collidables", nil, 1000},
		{"nil collidable", []Collidable{nil}, 1000},
		{"beyond max distance", []Collidable{flatAt(-2000)}, 1000},
		{"empty hits", []Collidable{CollidableFunc(func(Ray, float64) []Hit { return nil })}, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample := p.GroundHeight(mgl64.Vec3{}, tt.collidables, tt.maxDistance)
			if sample.Found {
				t.Errorf("Expected absent ground, got %+v", sample)
			}
		})
	}
}

func TestGroundHeightIgnoresOutOfRangeHits(t *testing.T) {
	p := newTestPhysics(t)
	bad := CollidableFunc(func(ray Ray, far float64) []Hit {
		return []Hit{
			{Distance: -5, Point: mgl64.Vec3{0, 500, 0}},
			{Distance: far + 1, Point: mgl64.Vec3{0, -5000, 0}},
		}
	})
	if sample := p.GroundHeight(mgl64.Vec3{}, []Collidable{bad}, 1000); sample.Found {
		t.Errorf("Expected out-of-range hits to be ignored, got %+v", sample)
	}
}

func TestGroundRay(t *testing.T) {
	p := newTestPhysics(t)
	ray := p.GroundRay(mgl64.Vec3{1, 2, 3})
	if ray.Origin != (mgl64.Vec3{1, 102, 3}) {
		t.Errorf("origin = %v, want (1, 102, 3)", ray.Origin)
	}
	if ray.Direction != Down {
		t.Errorf("direction = %v, want %v", ray.Direction, Down)
	}
}
