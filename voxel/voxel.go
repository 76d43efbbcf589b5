package voxel

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	// The edge length of a voxel in world units.
	VoxelSize = 0.125

	// The number of voxels along each chunk edge.
	ChunkSize = 32

	// The edge length of a chunk in world units.
	ChunkWorldSize = ChunkSize * VoxelSize

	// The depth of a chunk octree: log2(ChunkSize).
	MaxOctreeDepth = 5

	// The maximum number of entries in a palette, air included.
	MaxMaterials = 255

	// The largest chunk coordinate magnitude positions can map to. It leaves
	// room for chunk walks to step past it without overflowing int32.
	MaxChunkCoord = 1 << 30

	ErrTypeOutOfRange  = "voxel_out_of_range"
	ErrTypePaletteFull = "voxel_palette_full"
)

// ID identifies a voxel material. The zero value is air.
type ID uint32

// Air is the empty voxel.
const Air ID = 0

// IsAir reports whether the voxel is empty.
func (id ID) IsAir() bool {
	return id == Air
}

// IsSolid reports whether the voxel blocks rays.
func (id ID) IsSolid() bool {
	return id != Air
}

// Material describes how a voxel looks.
type Material struct {
	Color     [3]float32 `json:"color"`
	Roughness float32    `json:"roughness"`
	Metallic  float32    `json:"metallic"`
	Emission  float32    `json:"emission"`
}

// NewMaterial creates a material from a hex color such as "#7f7f7f".
func NewMaterial(hex string, roughness, metallic float32) (Material, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Material{}, errors.New("invalid material color").
			WithTag("color", hex).
			Wrap(err)
	}
	c = c.Clamped()

	return Material{
		Color:     [3]float32{float32(c.R), float32(c.G), float32(c.B)},
		Roughness: roughness,
		Metallic:  metallic,
	}, nil
}

// Hex returns the material color as a hex string.
func (m Material) Hex() string {
	return colorful.Color{
		R: float64(m.Color[0]),
		G: float64(m.Color[1]),
		B: float64(m.Color[2]),
	}.Hex()
}

// Palette maps voxel ids to materials. Index 0 is the air entry.
type Palette []Material

// The default material, used for air and unknown ids.
var defaultMaterial = mustMaterial("#808080", 0.8, 0)

// Ids of the default palette.
const (
	Stone ID = iota + 1
	Sand
	Dirt
	Grass
	MountainRock
)

// DefaultPalette returns the built-in terrain palette.
func DefaultPalette() Palette {
	return Palette{
		defaultMaterial,
		mustMaterial("#808080", 0.9, 0),   // stone
		mustMaterial("#cc9966", 0.8, 0),   // sand
		mustMaterial("#996633", 0.9, 0),   // dirt
		mustMaterial("#4db333", 0.8, 0),   // grass
		mustMaterial("#666666", 0.7, 0.1), // mountain rock
	}
}

// NewPalette creates a palette holding the air entry followed by the given
// materials.
func NewPalette(materials ...Material) (Palette, error) {
	if len(materials)+1 > MaxMaterials {
		return nil, errors.New("too many materials").
			WithTag("count", len(materials)+1).
			WithTag("max", MaxMaterials).
			WithType(ErrTypePaletteFull)
	}

	p := make(Palette, 0, len(materials)+1)
	p = append(p, defaultMaterial)
	return append(p, materials...), nil
}

// Material returns the material for the given id. Unknown ids resolve to the
// air entry.
func (p Palette) Material(id ID) Material {
	if int(id) >= len(p) {
		return defaultMaterial
	}
	return p[id]
}

// MaxID returns the highest id the palette defines.
func (p Palette) MaxID() ID {
	if len(p) == 0 {
		return Air
	}
	return ID(len(p) - 1)
}

func mustMaterial(hex string, roughness, metallic float32) Material {
	m, err := NewMaterial(hex, roughness, metallic)
	if err != nil {
		panic(err)
	}
	return m
}
