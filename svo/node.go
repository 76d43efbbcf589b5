package svo

import (
	"math/bits"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/jera/voxel"
)

// Node is a record of the octree node pool.
//
// The children of a node are stored contiguously, ordered by octant. The child
// in octant o lives at ChildPtr + popcount(ChildMask & (1<<o - 1)). A bit set
// in LeafMask marks a child that is a single voxel whose id is held in the
// Voxel field of its record.
type Node struct {
	ChildMask uint8    `json:"child_mask"`
	LeafMask  uint8    `json:"leaf_mask"`
	ChildPtr  uint32   `json:"child_ptr"`
	Voxel     voxel.ID `json:"voxel"`
}

// ChildCount returns the number of children of the node.
func (n Node) ChildCount() int {
	return bits.OnesCount8(n.ChildMask)
}

// HasChild reports whether the octant holds a child.
func (n Node) HasChild(octant uint8) bool {
	return n.ChildMask&(1<<octant) != 0
}

// IsLeaf reports whether the octant holds a single voxel.
func (n Node) IsLeaf(octant uint8) bool {
	return n.LeafMask&(1<<octant) != 0
}

// childOffset returns the rank of the octant among the node children.
func (n Node) childOffset(octant uint8) uint32 {
	return uint32(bits.OnesCount8(n.ChildMask & (1<<octant - 1)))
}

// ChildKind tells what an octant of a node holds.
type ChildKind uint8

const (
	ChildEmpty ChildKind = iota
	ChildLeaf
	ChildNode
)

func (k ChildKind) String() string {
	switch k {
	case ChildLeaf:
		return "leaf"
	case ChildNode:
		return "node"
	default:
		return "empty"
	}
}

// ChildRef references the content of a node octant.
type ChildRef struct {
	Kind ChildKind

	// The pool index of the child record. Unset for empty children.
	Index uint32

	// The voxel id of a leaf child.
	Voxel voxel.ID
}

// OctantOffset returns the unit offset of an octant: bit 0 selects the x
// upper half, bit 1 the y upper half and bit 2 the z upper half.
func OctantOffset(octant uint8) (x, y, z int) {
	return int(octant & 1), int(octant >> 1 & 1), int(octant >> 2 & 1)
}

func invariantViolation(msg string, index uint32) error {
	return errors.New(msg).
		WithTag("index", index).
		WithType(ErrTypeInvariant)
}
