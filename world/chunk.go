package world

import (
	"github.com/aukilabs/jera/svo"
	"github.com/aukilabs/jera/voxel"
	"github.com/golang/geo/r3"
)

// Generator provides the content of new chunks. Implementations must be safe
// for concurrent use.
type Generator interface {
	// Density returns a value greater than zero where p is solid.
	Density(p r3.Vector) float64

	// Material returns the id of the solid voxel at p.
	Material(p r3.Vector, palette voxel.Palette) voxel.ID
}

// Chunk is a cube of voxels stored in a sparse voxel octree.
type Chunk struct {
	Position voxel.ChunkPos

	octree    *svo.Octree
	dirty     bool
	generated bool
}

// NewChunk creates an empty chunk.
func NewChunk(pos voxel.ChunkPos) *Chunk {
	return &Chunk{
		Position: pos,
		octree:   svo.New(),
	}
}

// GenerateTerrain fills the chunk from the generator. It only runs once per
// chunk. A nil generator leaves the chunk empty.
func (c *Chunk) GenerateTerrain(gen Generator, palette voxel.Palette) {
	if c.generated {
		return
	}

	if gen != nil {
		c.fill(gen, palette)
	}

	c.generated = true
	c.dirty = true
}

func (c *Chunk) fill(gen Generator, palette voxel.Palette) {
	for i := 0; i < voxel.ChunkSize*voxel.ChunkSize*voxel.ChunkSize; i++ {
		local, _ := voxel.LocalPosFromIndex(i)
		p := local.WorldPos(c.Position)

		if gen.Density(p) <= 0 {
			continue
		}

		if id := gen.Material(p, palette); id.IsSolid() {
			c.octree.Set(local, id)
		}
	}
}

// Octree returns the chunk octree. Callers must not modify it.
func (c *Chunk) Octree() *svo.Octree {
	return c.octree
}

func (c *Chunk) Get(p voxel.LocalPos) voxel.ID {
	return c.octree.Get(p)
}

// Set writes a voxel and marks the chunk dirty.
func (c *Chunk) Set(p voxel.LocalPos, id voxel.ID) {
	c.octree.Set(p, id)
	c.dirty = true
}

// IsEmpty reports whether the chunk holds no solid voxel.
func (c *Chunk) IsEmpty() bool {
	return c.octree.IsEmpty()
}

func (c *Chunk) IsDirty() bool {
	return c.dirty
}

func (c *Chunk) IsGenerated() bool {
	return c.generated
}

// MarkClean clears the dirty flag once the chunk content has been consumed.
func (c *Chunk) MarkClean() {
	c.dirty = false
}

// Bounds returns the world-space box covered by the chunk.
func (c *Chunk) Bounds() (min, max r3.Vector) {
	return c.Position.Bounds()
}
