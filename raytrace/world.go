package raytrace

import (
	"math"

	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
)

// TraceWorld walks the chunks crossed by the ray, nearest first, and returns
// the first hit closer than maxDistance. Chunks that are not resident or hold
// no voxel are skipped.
func TraceWorld(v world.View, r Ray, maxDistance float64, m Method) Hit {
	if maxDistance <= 0 || maxDistance > MaxDistance {
		maxDistance = MaxDistance
	}

	// Each chunk crossed moves one axis by one chunk.
	maxSteps := int(math.Ceil(maxDistance/voxel.ChunkWorldSize))*3 + 3

	var (
		cell   [3]int32
		step   [3]int32
		tMax   [3]float64
		tDelta [3]float64
	)

	start := voxel.ChunkPosFromWorld(r.Origin)
	cell = [3]int32{start.X, start.Y, start.Z}

	for i := 0; i < 3; i++ {
		d := axis(r.Direction, i)
		step[i] = int32(sign(d))

		if d == 0 {
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
			continue
		}

		next := cell[i]
		if d > 0 {
			next++
		}
		boundary := float64(next) * voxel.ChunkWorldSize
		tMax[i] = (boundary - axis(r.Origin, i)) / d
		tDelta[i] = voxel.ChunkWorldSize / math.Abs(d)
	}

	for t, steps := 0.0, 0; t <= maxDistance && steps < maxSteps; steps++ {
		pos := voxel.ChunkPos{X: cell[0], Y: cell[1], Z: cell[2]}

		if c := v.Chunk(pos); c != nil && !c.IsEmpty() {
			hit := traceChunk(r, c, m)
			if hit.Hit && hit.Distance <= maxDistance {
				return hit
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
		cell[a] += step[a]
		tMax[a] += tDelta[a]
	}

	return Miss()
}

func traceChunk(r Ray, c *world.Chunk, m Method) Hit {
	if m == MethodDDA {
		return TraceChunk(r, c)
	}
	return TraceChunkOctree(r, c)
}
