package svo

import (
	"math/bits"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/jera/voxel"
)

const (
	ErrTypeInvariant = "svo_invariant_violation"

	// The largest run of sibling records: a full node.
	maxRun = 8
)

// Octree is a sparse voxel octree backed by a node pool. Index 0 of the pool
// is the root and is never freed.
//
// An Octree is not safe for concurrent use.
type Octree struct {
	size  int
	depth int
	nodes []Node

	// Released runs of contiguous records, bucketed by run length.
	free [maxRun + 1][]uint32
}

// New creates an empty octree covering a chunk.
func New() *Octree {
	return NewWithSize(voxel.ChunkSize)
}

// NewWithSize creates an empty octree whose edge holds size voxels. Size must
// be a power of two between 2 and voxel.ChunkSize.
func NewWithSize(size int) *Octree {
	if size < 2 || size > voxel.ChunkSize || size&(size-1) != 0 {
		panic(errors.New("octree size must be a power of two").
			WithTag("size", size).
			WithTag("max", voxel.ChunkSize))
	}

	return &Octree{
		size:  size,
		depth: bits.TrailingZeros(uint(size)),
		nodes: []Node{{}},
	}
}

// Size returns the number of voxels along the octree edge.
func (o *Octree) Size() int {
	return o.size
}

// Depth returns the number of levels below the root.
func (o *Octree) Depth() int {
	return o.depth
}

// NodeCount returns the length of the node pool, free records included.
func (o *Octree) NodeCount() int {
	return len(o.nodes)
}

// Nodes returns the node pool. The returned slice must not be modified.
func (o *Octree) Nodes() []Node {
	return o.nodes
}

// Root returns the root record.
func (o *Octree) Root() Node {
	return o.nodes[0]
}

// IsEmpty reports whether the octree holds no voxel.
func (o *Octree) IsEmpty() bool {
	return o.nodes[0].ChildMask == 0
}

// FreeCount returns the number of pool records available for reuse.
func (o *Octree) FreeCount() int {
	n := 0
	for k, runs := range o.free {
		n += k * len(runs)
	}
	return n
}

// VoxelCount returns the number of non-air voxels.
func (o *Octree) VoxelCount() int {
	return o.countLeaves(0)
}

func (o *Octree) countLeaves(index uint32) int {
	n := o.nodes[index]
	count := bits.OnesCount8(n.LeafMask)

	for oct := uint8(0); oct < 8; oct++ {
		if ref := o.Child(index, oct); ref.Kind == ChildNode {
			count += o.countLeaves(ref.Index)
		}
	}
	return count
}

// Clear removes every voxel and releases the pool.
func (o *Octree) Clear() {
	o.nodes = o.nodes[:1]
	o.nodes[0] = Node{}
	for k := range o.free {
		o.free[k] = nil
	}
}

// Child returns what the octant of the node at index holds.
func (o *Octree) Child(index uint32, octant uint8) ChildRef {
	if int(index) >= len(o.nodes) {
		panic(invariantViolation("node index out of range", index))
	}

	n := o.nodes[index]
	if !n.HasChild(octant) {
		if n.IsLeaf(octant) {
			panic(invariantViolation("leaf bit set without child bit", index))
		}
		return ChildRef{Kind: ChildEmpty}
	}

	child := n.ChildPtr + n.childOffset(octant)
	if int(child) >= len(o.nodes) || child == 0 {
		panic(invariantViolation("child index out of range", index))
	}

	if n.IsLeaf(octant) {
		return ChildRef{
			Kind:  ChildLeaf,
			Index: child,
			Voxel: o.nodes[child].Voxel,
		}
	}
	return ChildRef{Kind: ChildNode, Index: child}
}

// Get returns the voxel at the given position. Unset voxels are air.
func (o *Octree) Get(p voxel.LocalPos) voxel.ID {
	x, y, z := o.checkPos(p)

	index := uint32(0)
	var ox, oy, oz int
	for half := o.size / 2; half > 0; half /= 2 {
		oct := octantOf(x, y, z, ox, oy, oz, half)

		ref := o.Child(index, oct)
		switch ref.Kind {
		case ChildEmpty:
			return voxel.Air

		case ChildLeaf:
			return ref.Voxel
		}

		index = ref.Index
		ox, oy, oz = advance(ox, oy, oz, oct, half)
	}

	panic(invariantViolation("internal node at voxel level", index))
}

// Set writes the voxel at the given position. Writing air removes the voxel
// and prunes the internal nodes left without children.
func (o *Octree) Set(p voxel.LocalPos, id voxel.ID) {
	x, y, z := o.checkPos(p)

	type step struct {
		parent uint32
		octant uint8
	}
	path := make([]step, 0, o.depth)

	index := uint32(0)
	var ox, oy, oz int
	for half := o.size / 2; half > 0; half /= 2 {
		oct := octantOf(x, y, z, ox, oy, oz, half)

		ref := o.Child(index, oct)
		switch ref.Kind {
		case ChildEmpty:
			if id.IsAir() {
				return
			}

			if half == 1 {
				leaf := o.insertChild(index, oct, true)
				o.nodes[leaf].Voxel = id
				return
			}
			ref.Index = o.insertChild(index, oct, false)

		case ChildLeaf:
			if !id.IsAir() {
				o.nodes[ref.Index].Voxel = id
				return
			}

			o.removeChild(index, oct)
			for len(path) > 0 && o.nodes[index].ChildMask == 0 {
				last := path[len(path)-1]
				path = path[:len(path)-1]
				o.removeChild(last.parent, last.octant)
				index = last.parent
			}
			return
		}

		path = append(path, step{parent: index, octant: oct})
		index = ref.Index
		ox, oy, oz = advance(ox, oy, oz, oct, half)
	}

	panic(invariantViolation("internal node at voxel level", index))
}

// insertChild adds an empty child in the octant of the node at index and
// returns the child record index. The sibling run is moved to a new run so
// children stay contiguous.
func (o *Octree) insertChild(index uint32, octant uint8, leaf bool) uint32 {
	n := o.nodes[index]
	count := uint32(n.ChildCount())
	rank := n.childOffset(octant)

	start := o.alloc(int(count + 1))
	copy(o.nodes[start:start+rank], o.nodes[n.ChildPtr:n.ChildPtr+rank])
	o.nodes[start+rank] = Node{}
	copy(o.nodes[start+rank+1:start+count+1], o.nodes[n.ChildPtr+rank:n.ChildPtr+count])
	if count > 0 {
		o.release(n.ChildPtr, int(count))
	}

	n.ChildPtr = start
	n.ChildMask |= 1 << octant
	if leaf {
		n.LeafMask |= 1 << octant
	}
	o.nodes[index] = n
	return start + rank
}

// removeChild drops the childless child in the octant of the node at index
// and compacts the sibling run.
func (o *Octree) removeChild(index uint32, octant uint8) {
	n := o.nodes[index]
	count := uint32(n.ChildCount())
	rank := n.childOffset(octant)

	if child := o.nodes[n.ChildPtr+rank]; child.ChildMask != 0 {
		panic(invariantViolation("removing a node that still has children", n.ChildPtr+rank))
	}

	copy(o.nodes[n.ChildPtr+rank:], o.nodes[n.ChildPtr+rank+1:n.ChildPtr+count])
	o.release(n.ChildPtr+count-1, 1)

	n.ChildMask &^= 1 << octant
	n.LeafMask &^= 1 << octant
	if n.ChildMask == 0 {
		n.ChildPtr = 0
	}
	o.nodes[index] = n
}

// alloc returns the first index of a run of k zeroed records. Released runs
// are reused before the pool grows.
func (o *Octree) alloc(k int) uint32 {
	if runs := o.free[k]; len(runs) > 0 {
		start := runs[len(runs)-1]
		o.free[k] = runs[:len(runs)-1]
		return start
	}

	for j := k + 1; j <= maxRun; j++ {
		runs := o.free[j]
		if len(runs) == 0 {
			continue
		}

		start := runs[len(runs)-1]
		o.free[j] = runs[:len(runs)-1]
		o.free[j-k] = append(o.free[j-k], start+uint32(k))
		return start
	}

	start := uint32(len(o.nodes))
	for i := 0; i < k; i++ {
		o.nodes = append(o.nodes, Node{})
	}
	return start
}

func (o *Octree) release(start uint32, k int) {
	if start == 0 {
		panic(invariantViolation("releasing the root", start))
	}

	clear(o.nodes[start : start+uint32(k)])
	o.free[k] = append(o.free[k], start)
}

func (o *Octree) checkPos(p voxel.LocalPos) (x, y, z int) {
	x, y, z = p.X(), p.Y(), p.Z()
	if x >= o.size || y >= o.size || z >= o.size {
		panic(errors.New("position outside octree").
			WithTag("position", p.String()).
			WithTag("size", o.size).
			WithType(ErrTypeInvariant))
	}
	return x, y, z
}

func octantOf(x, y, z, ox, oy, oz, half int) uint8 {
	var oct uint8
	if x >= ox+half {
		oct |= 1
	}
	if y >= oy+half {
		oct |= 2
	}
	if z >= oz+half {
		oct |= 4
	}
	return oct
}

func advance(ox, oy, oz int, octant uint8, half int) (int, int, int) {
	dx, dy, dz := OctantOffset(octant)
	return ox + dx*half, oy + dy*half, oz + dz*half
}
