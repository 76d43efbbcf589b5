package raytrace

import (
	"math"

	"github.com/golang/geo/r3"
)

// The largest interval length treated as a ray only touching a box. It is
// also the tolerance under which the grid walk crosses boundaries together.
const tieEpsilon = 1e-9

// IntersectAABB returns the parametric range where the ray is inside the box.
// tNear is clamped to 0 when the origin is inside the box.
func IntersectAABB(r Ray, min, max r3.Vector) (tNear, tFar float64, ok bool) {
	tNear, tFar, _, ok = slab(r, min, max, false)
	return tNear, tFar, ok
}

// intersectCell is IntersectAABB for voxel and chunk boxes, which are half
// open: a ray parallel to an axis on the upper face is outside and a ray only
// touching a face, an edge or a corner misses.
func intersectCell(r Ray, min, max r3.Vector) (tNear, tFar float64, entryAxis int, ok bool) {
	return slab(r, min, max, true)
}

// slab implements IntersectAABB and also returns the axis through which the
// ray enters the box, or -1 when the origin is inside.
func slab(r Ray, min, max r3.Vector, halfOpen bool) (tNear, tFar float64, entryAxis int, ok bool) {
	tNear = math.Inf(-1)
	tFar = math.Inf(1)
	entryAxis = -1

	for i := 0; i < 3; i++ {
		o := axis(r.Origin, i)
		d := axis(r.Direction, i)
		lo := axis(min, i)
		hi := axis(max, i)

		// Parallel to the slab: inside it for every t or never.
		if d == 0 {
			if o < lo || o > hi || (halfOpen && o >= hi) {
				return 0, 0, -1, false
			}
			continue
		}

		inv := 1 / d
		t1 := (lo - o) * inv
		t2 := (hi - o) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		if t1 > tNear {
			tNear = t1
			entryAxis = i
		}
		if t2 < tFar {
			tFar = t2
		}
	}

	if tNear > tFar || tFar <= 0 {
		return 0, 0, -1, false
	}

	if tNear < 0 {
		tNear = 0
		entryAxis = -1
	}

	if halfOpen && tFar-tNear <= tieEpsilon {
		return 0, 0, -1, false
	}
	return tNear, tFar, entryAxis, true
}
