// Package upload flattens chunk octrees into buffers a GPU renderer can read.
package upload

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/jera/svo"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
)

const (
	// The size of a packed node: child mask, leaf mask, child pointer and
	// voxel id as little endian uint32.
	NodeSize = 16

	// The size of a packed material: color, roughness, metallic, emission and
	// two padding floats.
	MaterialSize = 32
)

// Packer keeps the packed node buffers of the resident chunks up to date.
type Packer struct {
	World *world.World

	// The duration between flushes when nothing requests one.
	Interval time.Duration

	notify  chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	buffers map[voxel.ChunkPos][]byte
}

func (p *Packer) init() {
	p.once.Do(func() {
		p.notify = make(chan struct{}, 1)
		p.buffers = make(map[voxel.ChunkPos][]byte)
	})
}

// HandleUploads starts a goroutine that flushes dirty chunks when notified
// and at each interval, until the context is done.
func (p *Packer) HandleUploads(ctx context.Context) {
	p.init()

	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.notify:
				p.Flush()
			case <-ticker.C:
				p.Flush()
			}
		}
	}()
}

// Notify requests a flush without blocking.
func (p *Packer) Notify() {
	p.init()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Flush packs the dirty chunks and drops the buffers of evicted chunks. It
// returns the number of packed chunks.
func (p *Packer) Flush() int {
	p.init()
	start := time.Now()

	packed := make(map[voxel.ChunkPos][]byte)
	p.World.CollectDirty(func(c *world.Chunk) {
		packed[c.Position] = PackNodes(c.Octree().Nodes())
	})

	resident := make(map[voxel.ChunkPos]struct{})
	for _, pos := range p.World.LoadedChunks() {
		resident[pos] = struct{}{}
	}

	p.mu.Lock()
	bytes := 0
	for pos, buf := range packed {
		p.buffers[pos] = buf
		bytes += len(buf)
	}

	dropped := 0
	for pos := range p.buffers {
		if _, ok := resident[pos]; !ok {
			delete(p.buffers, pos)
			dropped++
		}
	}
	p.mu.Unlock()

	instrumentFlush(len(packed), bytes, start)
	if len(packed) != 0 || dropped != 0 {
		logs.WithTag("packed", len(packed)).
			WithTag("dropped", dropped).
			WithTag("bytes", bytes).
			Debug("chunk buffers updated")
	}
	return len(packed)
}

// Buffer returns the packed nodes of the chunk.
func (p *Packer) Buffer(pos voxel.ChunkPos) ([]byte, bool) {
	p.init()

	p.mu.RLock()
	defer p.mu.RUnlock()

	buf, ok := p.buffers[pos]
	return buf, ok
}

// Len returns the number of packed chunks.
func (p *Packer) Len() int {
	p.init()

	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.buffers)
}

// PackNodes encodes an octree node pool.
func PackNodes(nodes []svo.Node) []byte {
	buf := make([]byte, 0, len(nodes)*NodeSize)
	for _, n := range nodes {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.ChildMask))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.LeafMask))
		buf = binary.LittleEndian.AppendUint32(buf, n.ChildPtr)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.Voxel))
	}
	return buf
}

// UnpackNodes decodes a buffer produced by PackNodes. Trailing bytes that do
// not form a full node are ignored.
func UnpackNodes(buf []byte) []svo.Node {
	nodes := make([]svo.Node, 0, len(buf)/NodeSize)
	for ; len(buf) >= NodeSize; buf = buf[NodeSize:] {
		nodes = append(nodes, svo.Node{
			ChildMask: uint8(binary.LittleEndian.Uint32(buf[0:])),
			LeafMask:  uint8(binary.LittleEndian.Uint32(buf[4:])),
			ChildPtr:  binary.LittleEndian.Uint32(buf[8:]),
			Voxel:     voxel.ID(binary.LittleEndian.Uint32(buf[12:])),
		})
	}
	return nodes
}

// PackMaterials encodes a palette.
func PackMaterials(p voxel.Palette) []byte {
	buf := make([]byte, 0, len(p)*MaterialSize)
	for _, m := range p {
		for _, f := range [8]float32{m.Color[0], m.Color[1], m.Color[2], m.Roughness, m.Metallic, m.Emission} {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}
