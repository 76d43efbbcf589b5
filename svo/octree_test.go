package svo

import (
	"math/bits"
	"math/rand"
	"testing"

	"github.com/aukilabs/jera/voxel"
	"github.com/stretchr/testify/require"
)

func TestOctreeEmpty(t *testing.T) {
	o := New()
	require.True(t, o.IsEmpty())
	require.Equal(t, 1, o.NodeCount())
	require.Equal(t, voxel.ChunkSize, o.Size())
	require.Equal(t, voxel.MaxOctreeDepth, o.Depth())
	require.Equal(t, voxel.Air, o.Get(voxel.MustLocalPos(5, 6, 7)))
}

func TestOctreeSetGet(t *testing.T) {
	t.Run("single voxel", func(t *testing.T) {
		o := New()
		p := voxel.MustLocalPos(0, 0, 0)

		o.Set(p, 7)
		require.Equal(t, voxel.ID(7), o.Get(p))
		require.False(t, o.IsEmpty())
		require.Equal(t, 1, o.VoxelCount())
		require.Equal(t, voxel.Air, o.Get(voxel.MustLocalPos(1, 0, 0)))
	})

	t.Run("overwrite", func(t *testing.T) {
		o := New()
		p := voxel.MustLocalPos(31, 31, 31)

		o.Set(p, 1)
		count := o.NodeCount()
		o.Set(p, 2)
		require.Equal(t, voxel.ID(2), o.Get(p))
		require.Equal(t, count, o.NodeCount())
	})

	t.Run("eight voxels of one node keep distinct ids", func(t *testing.T) {
		o := New()
		for oct := uint8(0); oct < 8; oct++ {
			x, y, z := OctantOffset(oct)
			o.Set(voxel.MustLocalPos(2+x, 4+y, 6+z), voxel.ID(oct+1))
		}

		for oct := uint8(0); oct < 8; oct++ {
			x, y, z := OctantOffset(oct)
			require.Equal(t, voxel.ID(oct+1), o.Get(voxel.MustLocalPos(2+x, 4+y, 6+z)))
		}
		require.Equal(t, 8, o.VoxelCount())
	})

	t.Run("random roundtrip", func(t *testing.T) {
		o := New()
		expected := make(map[voxel.LocalPos]voxel.ID)
		rnd := rand.New(rand.NewSource(42))

		for i := 0; i < 5000; i++ {
			p := voxel.MustLocalPos(rnd.Intn(32), rnd.Intn(32), rnd.Intn(32))
			id := voxel.ID(rnd.Intn(6))

			o.Set(p, id)
			require.Equal(t, id, o.Get(p))
			expected[p] = id
		}

		solid := 0
		for p, id := range expected {
			require.Equal(t, id, o.Get(p), p.String())
			if id.IsSolid() {
				solid++
			}
		}
		require.Equal(t, solid, o.VoxelCount())
		requireContiguous(t, o)
	})
}

func TestOctreeAir(t *testing.T) {
	t.Run("air on unset position does not allocate", func(t *testing.T) {
		o := New()
		o.Set(voxel.MustLocalPos(3, 3, 3), 4)
		count := o.NodeCount()

		o.Set(voxel.MustLocalPos(20, 1, 9), voxel.Air)
		require.Equal(t, count, o.NodeCount())
		require.Zero(t, o.FreeCount())
	})

	t.Run("removing the last voxel empties the octree", func(t *testing.T) {
		o := New()
		p := voxel.MustLocalPos(9, 17, 30)

		o.Set(p, 3)
		o.Set(p, voxel.Air)
		require.True(t, o.IsEmpty())
		require.Equal(t, voxel.Air, o.Get(p))
		require.Equal(t, o.NodeCount()-1, o.FreeCount())
	})

	t.Run("removal keeps siblings", func(t *testing.T) {
		o := New()
		a := voxel.MustLocalPos(0, 0, 0)
		b := voxel.MustLocalPos(1, 0, 0)
		c := voxel.MustLocalPos(1, 1, 1)

		o.Set(a, 1)
		o.Set(b, 2)
		o.Set(c, 3)
		o.Set(b, voxel.Air)

		require.Equal(t, voxel.ID(1), o.Get(a))
		require.Equal(t, voxel.Air, o.Get(b))
		require.Equal(t, voxel.ID(3), o.Get(c))
		requireContiguous(t, o)
	})
}

func TestOctreeFreeListReuse(t *testing.T) {
	o := New()
	p := voxel.MustLocalPos(12, 0, 5)

	o.Set(p, 1)
	count := o.NodeCount()
	o.Set(p, voxel.Air)
	require.NotZero(t, o.FreeCount())

	o.Set(voxel.MustLocalPos(30, 30, 2), 2)
	require.Equal(t, count, o.NodeCount())
	require.Zero(t, o.FreeCount())
}

func TestOctreeChild(t *testing.T) {
	o := NewWithSize(2)
	o.Set(voxel.MustLocalPos(1, 0, 1), 9)

	require.Equal(t, ChildEmpty, o.Child(0, 0).Kind)

	ref := o.Child(0, 5)
	require.Equal(t, ChildLeaf, ref.Kind)
	require.Equal(t, voxel.ID(9), ref.Voxel)
	require.Equal(t, 1, o.Depth())

	require.Panics(t, func() {
		o.Get(voxel.MustLocalPos(2, 0, 0))
	})
}

func TestOctreeClear(t *testing.T) {
	o := New()
	o.Set(voxel.MustLocalPos(1, 2, 3), 1)
	o.Clear()

	require.True(t, o.IsEmpty())
	require.Equal(t, 1, o.NodeCount())
	require.Zero(t, o.FreeCount())
}

func TestNewWithInvalidSize(t *testing.T) {
	for _, size := range []int{0, 1, 3, 64} {
		require.Panics(t, func() {
			NewWithSize(size)
		})
	}
}

// requireContiguous checks that every reachable child index matches the
// ChildPtr plus popcount layout and that no record is reachable twice.
func requireContiguous(t *testing.T, o *Octree) {
	seen := make(map[uint32]struct{})

	var walk func(index uint32)
	walk = func(index uint32) {
		n := o.Nodes()[index]
		require.Equal(t, n.LeafMask, n.LeafMask&n.ChildMask)

		rank := uint32(0)
		for oct := uint8(0); oct < 8; oct++ {
			if !n.HasChild(oct) {
				continue
			}

			child := n.ChildPtr + rank
			require.Equal(t, child, n.ChildPtr+uint32(bits.OnesCount8(n.ChildMask&(1<<oct-1))))
			_, dup := seen[child]
			require.False(t, dup)
			seen[child] = struct{}{}

			if !n.IsLeaf(oct) {
				walk(child)
			}
			rank++
		}
	}
	walk(0)
}
