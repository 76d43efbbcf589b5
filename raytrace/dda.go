package raytrace

import (
	"math"

	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/golang/geo/r3"
)

// TraceChunk walks the voxel grid of the chunk cell by cell and returns the
// first solid voxel the ray enters. The hit is reported at the point where
// the ray enters the voxel.
//
// Cells are half open in the direction of travel: a ray crossing a grid edge
// or corner exactly steps over the cells it only touches.
func TraceChunk(r Ray, c *world.Chunk) Hit {
	return walkChunk(r, c, MaxRaySteps)
}

// walkChunk implements TraceChunk. A walk through a chunk visits at most
// 3*ChunkSize-2 cells, so maxSteps only bounds walks on corrupted input.
func walkChunk(r Ray, c *world.Chunk, maxSteps int) Hit {
	min, max := c.Bounds()
	tNear, _, entryAxis, ok := intersectCell(r, min, max)
	if !ok || c.IsEmpty() {
		return Miss()
	}

	var (
		cell   [3]int
		step   [3]int
		tMax   [3]float64
		tDelta [3]float64
	)

	entry := r.At(tNear)
	for i := 0; i < 3; i++ {
		d := axis(r.Direction, i)
		step[i] = int(sign(d))

		switch {
		case i == entryAxis && d > 0:
			cell[i] = 0
		case i == entryAxis:
			cell[i] = voxel.ChunkSize - 1
		default:
			cell[i] = cellIndex(axis(entry, i)-axis(min, i), d)
		}

		if d == 0 {
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
			continue
		}

		next := cell[i]
		if d > 0 {
			next++
		}
		boundary := axis(min, i) + float64(next)*voxel.VoxelSize
		tMax[i] = (boundary - axis(r.Origin, i)) / d
		tDelta[i] = voxel.VoxelSize / math.Abs(d)
	}

	octree := c.Octree()
	lastAxis := entryAxis
	t := tNear

	for steps := 0; steps < maxSteps; steps++ {
		local := voxel.MustLocalPos(cell[0], cell[1], cell[2])

		if id := octree.Get(local); id.IsSolid() {
			var normal r3.Vector
			if lastAxis >= 0 {
				normal = axisVector(lastAxis, -float64(step[lastAxis]))
			} else {
				a := dominantAxis(r.Direction)
				normal = axisVector(a, -sign(axis(r.Direction, a)))
			}

			return Hit{
				Hit:      true,
				Position: r.At(t),
				Normal:   normal,
				Material: id,
				Distance: t,
			}
		}

		a := 0
		if tMax[1] < tMax[a] {
			a = 1
		}
		if tMax[2] < tMax[a] {
			a = 2
		}
		t = tMax[a]

		// Boundaries crossed at the same parameter are crossed together.
		for i := 0; i < 3; i++ {
			if i != a && tMax[i]-t > tieEpsilon {
				continue
			}

			cell[i] += step[i]
			if cell[i] < 0 || cell[i] >= voxel.ChunkSize {
				return Miss()
			}
			tMax[i] += tDelta[i]
		}
		lastAxis = a
	}

	return Miss()
}

// cellIndex returns the cell containing offset, resolving offsets on a cell
// boundary to the cell the ray moves into.
func cellIndex(offset, d float64) int {
	f := offset / voxel.VoxelSize
	if d < 0 {
		return clampCell(int(math.Ceil(f)) - 1)
	}
	return clampCell(int(math.Floor(f)))
}

func clampCell(c int) int {
	return min(max(c, 0), voxel.ChunkSize-1)
}
