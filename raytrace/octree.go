package raytrace

import (
	"github.com/aukilabs/jera/svo"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/golang/geo/r3"
)

// TraceOctree descends the octree, skipping the octants the ray misses or
// enters after the closest hit found so far. The origin is the world position
// of the octree minimum corner.
//
// Octant boxes are half open like the cells of TraceChunk. Hits match
// TraceChunk in position, distance and material. Normals are derived from the
// hit offset to the voxel center and may differ from TraceChunk when the ray
// enters a voxel through an edge or corner.
func TraceOctree(r Ray, o *svo.Octree, origin r3.Vector) Hit {
	size := float64(o.Size()) * voxel.VoxelSize
	max := origin.Add(r3.Vector{X: size, Y: size, Z: size})

	if _, _, _, ok := intersectCell(r, origin, max); !ok || o.IsEmpty() {
		return Miss()
	}

	t := octreeTracer{
		ray:    r,
		octree: o,
		best:   Miss(),
	}
	t.visit(0, origin, size)
	return t.best
}

// TraceChunkOctree runs TraceOctree on the chunk octree.
func TraceChunkOctree(r Ray, c *world.Chunk) Hit {
	return TraceOctree(r, c.Octree(), c.Position.WorldOrigin())
}

type octreeTracer struct {
	ray    Ray
	octree *svo.Octree
	best   Hit
}

func (t *octreeTracer) visit(index uint32, nodeMin r3.Vector, nodeSize float64) {
	half := nodeSize / 2

	for oct := uint8(0); oct < 8; oct++ {
		ref := t.octree.Child(index, oct)
		if ref.Kind == svo.ChildEmpty {
			continue
		}

		dx, dy, dz := svo.OctantOffset(oct)
		childMin := nodeMin.Add(r3.Vector{
			X: float64(dx) * half,
			Y: float64(dy) * half,
			Z: float64(dz) * half,
		})
		childMax := childMin.Add(r3.Vector{X: half, Y: half, Z: half})

		tn, _, _, ok := intersectCell(t.ray, childMin, childMax)
		if !ok || tn >= t.best.Distance {
			continue
		}

		if ref.Kind == svo.ChildNode {
			t.visit(ref.Index, childMin, half)
			continue
		}

		pos := t.ray.At(tn)
		center := childMin.Add(r3.Vector{X: half / 2, Y: half / 2, Z: half / 2})
		offset := pos.Sub(center)
		a := dominantAxis(offset)

		t.best = Hit{
			Hit:      true,
			Position: pos,
			Normal:   axisVector(a, sign(axis(offset, a))),
			Material: ref.Voxel,
			Distance: tn,
		}
	}
}
