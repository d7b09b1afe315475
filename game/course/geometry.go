package course

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

const epsilon = 1e-9

// Plane is a flat surface through Point with the given Normal. A positive
// HalfExtent limits it to a square around Point in the x/z plane.
type Plane struct {
	Point      mgl64.Vec3
	Normal     mgl64.Vec3
	HalfExtent float64
}

// NewGroundPlane returns a horizontal plane at height y
func NewGroundPlane(y, halfExtent float64) Plane {
	return Plane{Point: mgl64.Vec3{0, y, 0}, Normal: mgl64.Vec3{0, 1, 0}, HalfExtent: halfExtent}
}

// Intersect implements engine.Collidable
func (p Plane) Intersect(ray engine.Ray, far float64) []engine.Hit {
	n := p.Normal.Normalize()
	denom := n.Dot(ray.Direction)
	if math.Abs(denom) < epsilon {
		return nil
	}
	d := n.Dot(p.Point.Sub(ray.Origin)) / denom
	if d < 0 || d > far {
		return nil
	}
	hit := ray.At(d)
	if p.HalfExtent > 0 {
		if math.Abs(hit.X()-p.Point.X()) > p.HalfExtent || math.Abs(hit.Z()-p.Point.Z()) > p.HalfExtent {
			return nil
		}
	}
	return []engine.Hit{{Distance: d, Point: hit}}
}

// Triangle is a two-sided triangle
type Triangle struct {
	A, B, C mgl64.Vec3
}

// Intersect implements engine.Collidable using the Moller-Trumbore test
func (tri Triangle) Intersect(ray engine.Ray, far float64) []engine.Hit {
	d, ok := tri.distance(ray)
	if !ok || d > far {
		return nil
	}
	return []engine.Hit{{Distance: d, Point: ray.At(d)}}
}

func (tri Triangle) distance(ray engine.Ray) (float64, bool) {
	e1 := tri.B.Sub(tri.A)
	e2 := tri.C.Sub(tri.A)
	pv := ray.Direction.Cross(e2)
	det := e1.Dot(pv)
	if math.Abs(det) < epsilon {
		return 0, false
	}
	inv := 1 / det
	tv := ray.Origin.Sub(tri.A)
	u := tv.Dot(pv) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	qv := tv.Cross(e1)
	v := ray.Direction.Dot(qv) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	d := e2.Dot(qv) * inv
	if d < 0 {
		return 0, false
	}
	return d, true
}

// Mesh is a triangle soup with a bounding box for early rejection
type Mesh struct {
	Triangles []Triangle
	min, max  mgl64.Vec3
}

// NewMesh builds a mesh from triangles
func NewMesh(triangles []Triangle) *Mesh {
	m := &Mesh{Triangles: triangles}
	if len(triangles) == 0 {
		return m
	}
	m.min = triangles[0].A
	m.max = triangles[0].A
	for _, t := range triangles {
		for _, v := range []mgl64.Vec3{t.A, t.B, t.C} {
			for i := 0; i < 3; i++ {
				m.min[i] = math.Min(m.min[i], v[i])
				m.max[i] = math.Max(m.max[i], v[i])
			}
		}
	}
	return m
}

// Bounds returns the mesh's axis-aligned bounding box
func (m *Mesh) Bounds() (mgl64.Vec3, mgl64.Vec3) {
	return m.min, m.max
}

// Intersect implements engine.Collidable
func (m *Mesh) Intersect(ray engine.Ray, far float64) []engine.Hit {
	if len(m.Triangles) == 0 {
		return nil
	}
	if _, _, ok := slab(ray, m.min, m.max, far); !ok {
		return nil
	}
	var hits []engine.Hit
	for _, t := range m.Triangles {
		hits = append(hits, t.Intersect(ray, far)...)
	}
	return hits
}

// NewHeightfield triangulates a regular grid of heights. heights[row][col] sits
// at (origin.x + col*cell, origin.y + h, origin.z + row*cell).
func NewHeightfield(origin mgl64.Vec3, cell float64, heights [][]float64) (*Mesh, error) {
	if cell <= 0 {
		return nil, fmt.Errorf("heightfield: cell size must be positive, got %v", cell)
	}
	if len(heights) < 2 {
		return nil, fmt.Errorf("heightfield: need at least 2 rows, got %d", len(heights))
	}
	cols := len(heights[0])
	if cols < 2 {
		return nil, fmt.Errorf("heightfield: need at least 2 columns, got %d", cols)
	}
	for r, row := range heights {
		if len(row) != cols {
			return nil, fmt.Errorf("heightfield: row %d has %d columns, expected %d", r, len(row), cols)
		}
	}

	vertex := func(r, c int) mgl64.Vec3 {
		return mgl64.Vec3{
			origin.X() + float64(c)*cell,
			origin.Y() + heights[r][c],
			origin.Z() + float64(r)*cell,
		}
	}

	triangles := make([]Triangle, 0, 2*(len(heights)-1)*(cols-1))
	for r := 0; r < len(heights)-1; r++ {
		for c := 0; c < cols-1; c++ {
			a, b := vertex(r, c), vertex(r, c+1)
			d, e := vertex(r+1, c), vertex(r+1, c+1)
			triangles = append(triangles, Triangle{a, b, e}, Triangle{a, e, d})
		}
	}
	return NewMesh(triangles), nil
}

// Box is an axis-aligned solid; rays hit its faces
type Box struct {
	Min, Max mgl64.Vec3
}

// Intersect implements engine.Collidable. Both the entry and exit points are
// reported when they are within range.
func (b Box) Intersect(ray engine.Ray, far float64) []engine.Hit {
	tmin, tmax, ok := slab(ray, b.Min, b.Max, far)
	if !ok {
		return nil
	}
	var hits []engine.Hit
	if tmin >= 0 {
		hits = append(hits, engine.Hit{Distance: tmin, Point: ray.At(tmin)})
	}
	if tmax >= 0 && tmax <= far && tmax != tmin {
		hits = append(hits, engine.Hit{Distance: tmax, Point: ray.At(tmax)})
	}
	return hits
}

// slab intersects a ray with an axis-aligned box and returns the entry and
// exit distances
func slab(ray engine.Ray, lo, hi mgl64.Vec3, far float64) (float64, float64, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for i := 0; i < 3; i++ {
		o, d := ray.Origin[i], ray.Direction[i]
		if math.Abs(d) < epsilon {
			if o < lo[i] || o > hi[i] {
				return 0, 0, false
			}
			continue
		}
		t1 := (lo[i] - o) / d
		t2 := (hi[i] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, 0, false
		}
	}
	if tmax < 0 || tmin > far {
		return 0, 0, false
	}
	return tmin, tmax, true
}

// WaveTerrain is an endless procedural surface
// y = Base + Amplitude * sin(2*pi*x/Wavelength) * cos(2*pi*z/Wavelength).
// Only vertical rays are answered exactly; any other ray misses.
type WaveTerrain struct {
	Base       float64
	Amplitude  float64
	Wavelength float64
}

// HeightAt returns the surface height at (x, z)
func (w WaveTerrain) HeightAt(x, z float64) float64 {
	if w.Wavelength <= 0 {
		return w.Base
	}
	k := 2 * math.Pi / w.Wavelength
	return w.Base + w.Amplitude*math.Sin(k*x)*math.Cos(k*z)
}

// Intersect implements engine.Collidable
func (w WaveTerrain) Intersect(ray engine.Ray, far float64) []engine.Hit {
	dir := ray.Direction
	if math.Abs(dir.X()) > epsilon || math.Abs(dir.Z()) > epsilon || math.Abs(dir.Y()) < epsilon {
		return nil
	}
	h := w.HeightAt(ray.Origin.X(), ray.Origin.Z())
	d := (h - ray.Origin.Y()) / dir.Y()
	if d < 0 || d > far {
		return nil
	}
	return []engine.Hit{{Distance: d, Point: mgl64.Vec3{ray.Origin.X(), h, ray.Origin.Z()}}}
}
