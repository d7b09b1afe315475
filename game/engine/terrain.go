package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Down is the direction of every ground query ray
var Down = mgl64.Vec3{0, -1, 0}

// Ray is a half-line starting at Origin. Direction is expected to be unit length.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// At returns the point at distance d along the ray
func (r Ray) At(d float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(d))
}

// Hit is one ray intersection
type Hit struct {
	Distance float64
	Point    mgl64.Vec3
}

// Collidable is anything the ground query can be cast against. Implementations
// return every intersection in [0, far]; order does not matter.
type Collidable interface {
	Intersect(ray Ray, far float64) []Hit
}

// CollidableFunc adapts a plain function to the Collidable interface
type CollidableFunc func(ray Ray, far float64) []Hit

// Intersect calls f
func (f CollidableFunc) Intersect(ray Ray, far float64) []Hit {
	return f(ray, far)
}

// GroundRay returns the downward ray used to probe beneath position
func (p *Physics) GroundRay(position mgl64.Vec3) Ray {
	origin := position
	origin[1] += p.tuning.RayStartMargin
	return Ray{Origin: origin, Direction: Down}
}

// GroundHeight casts a ray straight down from above position and returns the
// topmost surface elevation plus the body height. Found is false when no
// collidable is hit within maxDistance.
func (p *Physics) GroundHeight(position mgl64.Vec3, collidables []Collidable, maxDistance float64) TerrainSample {
	ray := p.GroundRay(position)

	nearest := math.Inf(1)
	var hitPoint mgl64.Vec3
	for _, c := range collidables {
		if c == nil {
			continue
		}
		for _, h := range c.Intersect(ray, maxDistance) {
			if h.Distance < 0 || h.Distance > maxDistance {
				continue
			}
			if h.Distance < nearest {
				nearest = h.Distance
				hitPoint = h.Point
			}
		}
	}

	if math.IsInf(nearest, 1) {
		return TerrainSample{}
	}
	return TerrainSample{Elevation: hitPoint.Y() + p.tuning.BodyHeight, Found: true}
}
