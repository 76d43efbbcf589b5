// Package terrain implements the default noise based voxel generator.
package terrain

import (
	"github.com/aukilabs/jera/voxel"
	"github.com/golang/geo/r3"
	"github.com/ojrac/opensimplex-go"
)

const (
	densityScale = 0.05
	surfaceScale = 0.1
	heightScale  = 100

	// Noise above this value turns shallow ground into sand instead of dirt.
	sandThreshold = 0.3
)

// Generator produces solid terrain where the 3D noise field is positive and
// picks materials by altitude.
type Generator struct {
	noise opensimplex.Noise
}

// New creates a generator seeded with the given value. Generators with the
// same seed produce the same world.
func New(seed int64) *Generator {
	return &Generator{
		noise: opensimplex.New(seed),
	}
}

// Density returns a value greater than zero where p is solid.
func (g *Generator) Density(p r3.Vector) float64 {
	s := p.Mul(densityScale)
	return g.noise.Eval3(s.X, s.Y, s.Z)
}

// Material returns the material for a solid voxel at p, clamped to the ids
// the palette defines.
func (g *Generator) Material(p r3.Vector, palette voxel.Palette) voxel.ID {
	var id voxel.ID

	switch h := p.Y / heightScale; {
	case h < -0.5:
		id = voxel.Stone

	case h < 0:
		if g.noise.Eval2(p.X*surfaceScale, p.Z*surfaceScale) > sandThreshold {
			id = voxel.Sand
		} else {
			id = voxel.Dirt
		}

	case h < 0.5:
		id = voxel.Grass

	default:
		id = voxel.MountainRock
	}

	return min(id, palette.MaxID())
}

// Flat is a generator producing solid ground below a fixed height.
type Flat struct {
	Height float64
	Voxel  voxel.ID
}

func (f Flat) Density(p r3.Vector) float64 {
	return f.Height - p.Y
}

func (f Flat) Material(p r3.Vector, palette voxel.Palette) voxel.ID {
	return min(f.Voxel, palette.MaxID())
}
