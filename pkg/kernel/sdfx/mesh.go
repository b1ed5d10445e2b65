package sdfx

import (
	"fmt"
	"math"
	"slices"

	"github.com/chazu/routegrid/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// rayEpsilon rejects hits at the ray origin and grazing determinants.
	rayEpsilon = 1e-12
	// baryEpsilon widens triangle edges in barycentric units.
	baryEpsilon = 1e-9
	// hitEpsilon merges hits at the same relative distance along a ray.
	hitEpsilon = 1e-9
)

// maxBucketsPerAxis caps the triangle index resolution.
const maxBucketsPerAxis = 64

// triangle is one mesh face in float64.
type triangle [3]mgl64.Vec3

// meshSDF3 turns a closed triangle mesh into an sdf.SDF3. The magnitude
// is the distance to the nearest triangle found in the surrounding index
// buckets; the sign comes from a majority vote of ray-crossing parity along
// the three positive axes.
type meshSDF3 struct {
	tris  []triangle
	bb    sdf.Box3
	index *triIndex
}

var _ sdf.SDF3 = (*meshSDF3)(nil)

func newMeshSDF3(m *kernel.Mesh) (*meshSDF3, error) {
	if m == nil || m.TriangleCount() == 0 {
		return nil, fmt.Errorf("sdfx: mesh has no triangles: %w", kernel.ErrGeometryOperationFailed)
	}
	tris := make([]triangle, m.TriangleCount())
	for t := range tris {
		c := m.Triangle(t)
		tris[t] = triangle{mgl64.Vec3(c[0]), mgl64.Vec3(c[1]), mgl64.Vec3(c[2])}
	}
	min, max := m.Bounds()
	return &meshSDF3{
		tris:  tris,
		bb:    sdf.Box3{Min: v3.Vec{X: min[0], Y: min[1], Z: min[2]}, Max: v3.Vec{X: max[0], Y: max[1], Z: max[2]}},
		index: newTriIndex(tris, mgl64.Vec3(min), mgl64.Vec3(max)),
	}, nil
}

// BoundingBox returns the bounds of the mesh vertices.
func (s *meshSDF3) BoundingBox() sdf.Box3 {
	return s.bb
}

// Evaluate returns the signed distance from p to the mesh surface.
func (s *meshSDF3) Evaluate(p v3.Vec) float64 {
	q := mgl64.Vec3{p.X, p.Y, p.Z}
	d := s.distance(q)
	if s.inside(q) {
		return -d
	}
	return d
}

func (s *meshSDF3) distance(p mgl64.Vec3) float64 {
	return s.index.nearest(p, func(t int) float64 {
		return pointTriangleDistance(p, s.tris[t])
	})
}

// inside votes over three axis-aligned rays so that a ray grazing an edge
// or vertex cannot flip the result on its own.
func (s *meshSDF3) inside(p mgl64.Vec3) bool {
	votes := 0
	for axis := 0; axis < 3; axis++ {
		if s.crossings(p, axis)%2 == 1 {
			votes++
		}
	}
	return votes >= 2
}

// crossings counts the surface crossings of the ray from p along +axis.
// A ray through an edge or vertex hits every triangle sharing it at the
// same distance; such hits count once.
func (s *meshSDF3) crossings(p mgl64.Vec3, axis int) int {
	var hits []float64
	for _, t := range s.index.ray(p, axis) {
		if d, ok := rayHitsTriangle(p, axis, s.tris[t]); ok {
			hits = append(hits, d)
		}
	}
	slices.Sort(hits)
	n := 0
	for i, d := range hits {
		if i == 0 || d-hits[i-1] > hitEpsilon*max(1, math.Abs(d)) {
			n++
		}
	}
	return n
}

// rayHitsTriangle is Möller-Trumbore specialised to a ray along +axis. It
// returns the distance along the ray to the hit. Edges are inclusive, with
// a little slack, so a ray through a shared edge is not lost between the
// two triangles.
func rayHitsTriangle(o mgl64.Vec3, axis int, t triangle) (float64, bool) {
	var dir mgl64.Vec3
	dir[axis] = 1

	e1 := t[1].Sub(t[0])
	e2 := t[2].Sub(t[0])
	h := dir.Cross(e2)
	a := e1.Dot(h)
	if math.Abs(a) < rayEpsilon {
		return 0, false
	}
	f := 1 / a
	sv := o.Sub(t[0])
	u := f * sv.Dot(h)
	if u < -baryEpsilon || u > 1+baryEpsilon {
		return 0, false
	}
	q := sv.Cross(e1)
	v := f * dir.Dot(q)
	if v < -baryEpsilon || u+v > 1+baryEpsilon {
		return 0, false
	}
	d := f * e2.Dot(q)
	return d, d > rayEpsilon
}

// pointTriangleDistance returns |p - closest point on t|, using the
// Voronoi-region walk from Ericson, Real-Time Collision Detection 5.1.5.
func pointTriangleDistance(p mgl64.Vec3, t triangle) float64 {
	a, b, c := t[0], t[1], t[2]
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return ap.Len()
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return bp.Len()
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return p.Sub(a.Add(ab.Mul(v))).Len()
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return cp.Len()
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return p.Sub(a.Add(ac.Mul(w))).Len()
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return p.Sub(b.Add(c.Sub(b).Mul(w))).Len()
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return p.Sub(a.Add(ab.Mul(v)).Add(ac.Mul(w))).Len()
}

// triIndex buckets triangles into a uniform grid over the mesh bounds.
// A triangle is stored in every bucket its bounding box touches.
type triIndex struct {
	min     mgl64.Vec3
	size    mgl64.Vec3 // bucket edge per axis
	n       [3]int
	buckets [][]int
}

func newTriIndex(tris []triangle, min, max mgl64.Vec3) *triIndex {
	per := int(math.Ceil(math.Cbrt(float64(len(tris))))) * 2
	per = int(math.Max(1, math.Min(float64(per), maxBucketsPerAxis)))

	ix := &triIndex{min: min}
	for a := 0; a < 3; a++ {
		extent := max[a] - min[a]
		if extent <= 0 {
			ix.n[a] = 1
			ix.size[a] = 1
			continue
		}
		ix.n[a] = per
		ix.size[a] = extent / float64(per)
	}
	ix.buckets = make([][]int, ix.n[0]*ix.n[1]*ix.n[2])

	for ti, t := range tris {
		lo, hi := t[0], t[0]
		for _, v := range t[1:] {
			for a := 0; a < 3; a++ {
				lo[a] = math.Min(lo[a], v[a])
				hi[a] = math.Max(hi[a], v[a])
			}
		}
		c0 := ix.cell(lo)
		c1 := ix.cell(hi)
		for x := c0[0]; x <= c1[0]; x++ {
			for y := c0[1]; y <= c1[1]; y++ {
				for z := c0[2]; z <= c1[2]; z++ {
					b := ix.bucket(x, y, z)
					ix.buckets[b] = append(ix.buckets[b], ti)
				}
			}
		}
	}
	return ix
}

// cell maps a point to clamped bucket coordinates.
func (ix *triIndex) cell(p mgl64.Vec3) [3]int {
	var c [3]int
	for a := 0; a < 3; a++ {
		i := int(math.Floor((p[a] - ix.min[a]) / ix.size[a]))
		c[a] = min(max(i, 0), ix.n[a]-1)
	}
	return c
}

func (ix *triIndex) bucket(x, y, z int) int {
	return (x*ix.n[1]+y)*ix.n[2] + z
}

// ray returns candidate triangles for a ray from p along +axis.
func (ix *triIndex) ray(p mgl64.Vec3, axis int) []int {
	c := ix.cell(p)
	seen := make(map[int]struct{})
	var out []int
	for s := c[axis]; s < ix.n[axis]; s++ {
		cc := c
		cc[axis] = s
		for _, t := range ix.buckets[ix.bucket(cc[0], cc[1], cc[2])] {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// nearest returns the smallest dist(t) over the triangles around p. Shells
// of buckets are searched outwards until no bucket in the next shell can
// be closer than the best distance found.
func (ix *triIndex) nearest(p mgl64.Vec3, dist func(t int) float64) float64 {
	c := ix.cell(p)
	limit := max(ix.n[0], ix.n[1], ix.n[2])
	step := math.Inf(1)
	for a := 0; a < 3; a++ {
		if ix.n[a] > 1 {
			step = math.Min(step, ix.size[a])
		}
	}

	best := math.Inf(1)
	seen := make(map[int]struct{})
	for r := 0; r <= limit; r++ {
		// A bucket r shells out is at least r-1 bucket edges from p.
		if r > 0 && float64(r-1)*step > best {
			break
		}
		for x := c[0] - r; x <= c[0]+r; x++ {
			for y := c[1] - r; y <= c[1]+r; y++ {
				for z := c[2] - r; z <= c[2]+r; z++ {
					if x < 0 || y < 0 || z < 0 || x >= ix.n[0] || y >= ix.n[1] || z >= ix.n[2] {
						continue
					}
					// only the shell at Chebyshev distance r
					if max(abs(x-c[0]), abs(y-c[1]), abs(z-c[2])) != r {
						continue
					}
					for _, t := range ix.buckets[ix.bucket(x, y, z)] {
						if _, ok := seen[t]; ok {
							continue
						}
						seen[t] = struct{}{}
						best = math.Min(best, dist(t))
					}
				}
			}
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
