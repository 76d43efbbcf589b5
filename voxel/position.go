package voxel

import (
	"cmp"
	"fmt"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

// ChunkPos is the integer coordinate of a chunk in the chunk grid.
type ChunkPos struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// ChunkPosFromWorld returns the chunk containing the given world position.
func ChunkPosFromWorld(p r3.Vector) ChunkPos {
	return ChunkPos{
		X: int32(math.Floor(p.X / ChunkWorldSize)),
		Y: int32(math.Floor(p.Y / ChunkWorldSize)),
		Z: int32(math.Floor(p.Z / ChunkWorldSize)),
	}
}

// InWorld reports whether p is finite and its chunk coordinates are within
// MaxChunkCoord.
func InWorld(p r3.Vector) bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if math.Abs(math.Floor(v/ChunkWorldSize)) > MaxChunkCoord {
			return false
		}
	}
	return true
}

// WorldOrigin returns the world position of the chunk minimum corner.
func (c ChunkPos) WorldOrigin() r3.Vector {
	return r3.Vector{
		X: float64(c.X) * ChunkWorldSize,
		Y: float64(c.Y) * ChunkWorldSize,
		Z: float64(c.Z) * ChunkWorldSize,
	}
}

// Bounds returns the world-space box covered by the chunk.
func (c ChunkPos) Bounds() (min, max r3.Vector) {
	min = c.WorldOrigin()
	max = min.Add(r3.Vector{X: ChunkWorldSize, Y: ChunkWorldSize, Z: ChunkWorldSize})
	return min, max
}

// Add returns the chunk offset by the given amounts.
func (c ChunkPos) Add(dx, dy, dz int32) ChunkPos {
	return ChunkPos{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}
}

// Chebyshev returns the box-metric distance between two chunks.
func (c ChunkPos) Chebyshev(o ChunkPos) int32 {
	return max(absInt32(c.X-o.X), absInt32(c.Y-o.Y), absInt32(c.Z-o.Z))
}

// Compare orders chunks by x, then y, then z.
func (c ChunkPos) Compare(o ChunkPos) int {
	if n := cmp.Compare(c.X, o.X); n != 0 {
		return n
	}
	if n := cmp.Compare(c.Y, o.Y); n != 0 {
		return n
	}
	return cmp.Compare(c.Z, o.Z)
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z)
}

// LocalPos is a voxel coordinate inside a chunk. Components are in
// [0, ChunkSize).
type LocalPos struct {
	x uint8
	y uint8
	z uint8
}

// NewLocalPos returns the local position for the given components.
func NewLocalPos(x, y, z int) (LocalPos, error) {
	if !inChunk(x) || !inChunk(y) || !inChunk(z) {
		return LocalPos{}, errors.New("local voxel position out of range").
			WithTag("x", x).
			WithTag("y", y).
			WithTag("z", z).
			WithType(ErrTypeOutOfRange)
	}
	return LocalPos{x: uint8(x), y: uint8(y), z: uint8(z)}, nil
}

// MustLocalPos is like NewLocalPos but panics on invalid components.
func MustLocalPos(x, y, z int) LocalPos {
	p, err := NewLocalPos(x, y, z)
	if err != nil {
		panic(err)
	}
	return p
}

// LocalPosFromIndex is the inverse of LocalPos.Index.
func LocalPosFromIndex(i int) (LocalPos, error) {
	if i < 0 || i >= ChunkSize*ChunkSize*ChunkSize {
		return LocalPos{}, errors.New("local voxel index out of range").
			WithTag("index", i).
			WithType(ErrTypeOutOfRange)
	}
	return LocalPos{
		x: uint8(i % ChunkSize),
		y: uint8(i / ChunkSize % ChunkSize),
		z: uint8(i / (ChunkSize * ChunkSize)),
	}, nil
}

func (p LocalPos) X() int { return int(p.x) }
func (p LocalPos) Y() int { return int(p.y) }
func (p LocalPos) Z() int { return int(p.z) }

// Index returns the flat index of the position, x varying fastest.
func (p LocalPos) Index() int {
	return int(p.x) + int(p.y)*ChunkSize + int(p.z)*ChunkSize*ChunkSize
}

// WorldPos returns the world position of the voxel minimum corner inside the
// given chunk.
func (p LocalPos) WorldPos(c ChunkPos) r3.Vector {
	return c.WorldOrigin().Add(r3.Vector{
		X: float64(p.x) * VoxelSize,
		Y: float64(p.y) * VoxelSize,
		Z: float64(p.z) * VoxelSize,
	})
}

// WorldCenter returns the world position of the voxel center inside the given
// chunk.
func (p LocalPos) WorldCenter(c ChunkPos) r3.Vector {
	h := VoxelSize / 2
	return p.WorldPos(c).Add(r3.Vector{X: h, Y: h, Z: h})
}

func (p LocalPos) String() string {
	return fmt.Sprintf("%d,%d,%d", p.x, p.y, p.z)
}

// WorldToChunkLocal returns the chunk containing p and the voxel holding p
// inside that chunk. Floating point error at chunk borders is absorbed by
// clamping the local position into the chunk.
func WorldToChunkLocal(p r3.Vector) (ChunkPos, LocalPos) {
	c := ChunkPosFromWorld(p)
	rel := p.Sub(c.WorldOrigin())

	return c, LocalPos{
		x: clampLocal(rel.X),
		y: clampLocal(rel.Y),
		z: clampLocal(rel.Z),
	}
}

func clampLocal(v float64) uint8 {
	i := int(math.Floor(v / VoxelSize))
	return uint8(min(max(i, 0), ChunkSize-1))
}

func inChunk(v int) bool {
	return v >= 0 && v < ChunkSize
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
