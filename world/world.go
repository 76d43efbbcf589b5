// Package world streams voxel chunks around a moving viewpoint.
package world

import (
	"context"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/jera/voxel"
	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
)

const (
	// The render distance used when none is configured.
	DefaultRenderDistance = 8

	MinRenderDistance = 0
	MaxRenderDistance = 16
)

// Config holds the shared settings of a world.
type Config struct {
	// The materials voxel ids refer to. Defaults to voxel.DefaultPalette.
	Palette voxel.Palette

	// The source of chunk content.
	Generator Generator

	// The box radius, in chunks, kept around the viewpoint.
	RenderDistance int

	// The maximum number of chunks generated in parallel. Defaults to the
	// number of CPUs.
	Workers int
}

// World owns the chunks resident around the last viewpoint.
//
// Reads (voxel queries, views, traversals) run concurrently. Writes (voxel
// edits, streaming) are exclusive.
type World struct {
	palette   voxel.Palette
	generator Generator
	workers   int

	// Serializes UpdateAround calls.
	updateMu sync.Mutex

	mu             sync.RWMutex
	chunks         map[voxel.ChunkPos]*Chunk
	renderDistance int
	center         voxel.ChunkPos
}

// New creates an empty world.
func New(c Config) *World {
	if c.Palette == nil {
		c.Palette = voxel.DefaultPalette()
	}

	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}

	return &World{
		palette:        c.Palette,
		generator:      c.Generator,
		workers:        c.Workers,
		chunks:         make(map[voxel.ChunkPos]*Chunk),
		renderDistance: clampRenderDistance(c.RenderDistance),
	}
}

// UpdateAround makes the chunks within the render distance of the viewpoint
// resident and evicts the others. Missing chunks are generated in parallel.
//
// When the context is canceled before generation completes, the resident set
// is left untouched and the context error is returned.
func (w *World) UpdateAround(ctx context.Context, viewpoint r3.Vector) error {
	w.updateMu.Lock()
	defer w.updateMu.Unlock()

	center := voxel.ChunkPosFromWorld(viewpoint)

	w.mu.RLock()
	rd := int32(w.renderDistance)
	var missing []voxel.ChunkPos
	for x := -rd; x <= rd; x++ {
		for y := -rd; y <= rd; y++ {
			for z := -rd; z <= rd; z++ {
				pos := center.Add(x, y, z)
				if _, ok := w.chunks[pos]; !ok {
					missing = append(missing, pos)
				}
			}
		}
	}
	w.mu.RUnlock()

	generated := make([]*Chunk, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)

	for i, pos := range missing {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			c := NewChunk(pos)
			c.GenerateTerrain(w.generator, w.palette)
			generated[i] = c

			instrumentChunkGenerated(start)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.New("generating chunks failed").
			WithTag("center", center.String()).
			WithTag("missing", len(missing)).
			Wrap(err)
	}

	w.mu.Lock()
	for _, c := range generated {
		w.chunks[c.Position] = c
	}

	evicted := 0
	for pos := range w.chunks {
		if pos.Chebyshev(center) > rd {
			delete(w.chunks, pos)
			evicted++
		}
	}
	w.center = center
	resident := len(w.chunks)
	w.mu.Unlock()

	instrumentStreaming(evicted, resident)
	logs.WithTag("center", center.String()).
		WithTag("generated", len(generated)).
		WithTag("evicted", evicted).
		WithTag("resident", resident).
		Debug("world updated")
	return nil
}

// RenderDistance returns the box radius kept around the viewpoint.
func (w *World) RenderDistance() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.renderDistance
}

// SetRenderDistance changes the render distance. It takes effect on the next
// UpdateAround call.
func (w *World) SetRenderDistance(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.renderDistance = clampRenderDistance(n)
}

// Center returns the chunk of the last viewpoint.
func (w *World) Center() voxel.ChunkPos {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.center
}

// Materials returns the world palette.
func (w *World) Materials() voxel.Palette {
	return w.palette
}

// ChunkCount returns the number of resident chunks.
func (w *World) ChunkCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.chunks)
}

// LoadedChunks returns the positions of the resident chunks.
func (w *World) LoadedChunks() []voxel.ChunkPos {
	w.mu.RLock()
	positions := make([]voxel.ChunkPos, 0, len(w.chunks))
	for pos := range w.chunks {
		positions = append(positions, pos)
	}
	w.mu.RUnlock()

	slices.SortFunc(positions, voxel.ChunkPos.Compare)
	return positions
}

// Voxel returns the voxel at the world position. Positions in chunks that are
// not resident are air.
func (w *World) Voxel(p r3.Vector) voxel.ID {
	pos, local := voxel.WorldToChunkLocal(p)

	w.mu.RLock()
	defer w.mu.RUnlock()

	c, ok := w.chunks[pos]
	if !ok {
		return voxel.Air
	}
	return c.Get(local)
}

// SetVoxel writes the voxel at the world position. Writes to chunks that are
// not resident are dropped and false is returned.
func (w *World) SetVoxel(p r3.Vector, id voxel.ID) bool {
	pos, local := voxel.WorldToChunkLocal(p)

	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.chunks[pos]
	if !ok {
		instrumentDroppedEdit()
		logs.WithTag("chunk", pos.String()).
			WithTag("voxel", id).
			Debug("voxel write on a chunk not in memory dropped")
		return false
	}

	c.Set(local, id)
	return true
}

// View runs fn with read access to the resident chunks. Chunks obtained from
// the view must not be used after fn returns.
func (w *World) View(fn func(v View)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn(View{chunks: w.chunks, palette: w.palette})
}

// CollectDirty calls fn for each dirty chunk and marks it clean.
func (w *World) CollectDirty(fn func(c *Chunk)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, c := range w.chunks {
		if c.IsDirty() {
			fn(c)
			c.MarkClean()
		}
	}
}

// View is a read-only access to the resident chunks.
type View struct {
	chunks  map[voxel.ChunkPos]*Chunk
	palette voxel.Palette
}

// Chunk returns the resident chunk at pos or nil.
func (v View) Chunk(pos voxel.ChunkPos) *Chunk {
	return v.chunks[pos]
}

// Range calls fn for each resident chunk until fn returns false.
func (v View) Range(fn func(c *Chunk) bool) {
	for _, c := range v.chunks {
		if !fn(c) {
			return
		}
	}
}

func (v View) Palette() voxel.Palette {
	return v.palette
}

func (v View) Len() int {
	return len(v.chunks)
}

func clampRenderDistance(n int) int {
	return min(max(n, MinRenderDistance), MaxRenderDistance)
}
