// Package raytrace finds the nearest solid voxel along rays.
package raytrace

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/jera/voxel"
	"github.com/golang/geo/r3"
)

const (
	// The maximum number of cells a chunk traversal visits.
	MaxRaySteps = 1000

	// The tolerance used when comparing hit distances.
	SurfaceEpsilon = 0.001

	// The default maximum length of a world traversal, in world units.
	MaxDistance = 1000.0

	ErrTypeDegenerateRay    = "raytrace_degenerate_ray"
	ErrTypeOriginOutOfRange = "raytrace_origin_out_of_range"
)

// Ray is a half line. Direction is unit length.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// NewRay creates a ray with a normalized direction. The origin must be a
// position the world can address.
func NewRay(origin, direction r3.Vector) (Ray, error) {
	if !voxel.InWorld(origin) {
		return Ray{}, errors.New("ray origin is outside of the world").
			WithTag("origin", origin.String()).
			WithType(ErrTypeOriginOutOfRange)
	}

	n := direction.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Ray{}, errors.New("ray direction must be a finite non zero vector").
			WithTag("direction", direction.String()).
			WithType(ErrTypeDegenerateRay)
	}

	return Ray{
		Origin:    origin,
		Direction: direction.Mul(1 / n),
	}, nil
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Hit is the result of a traversal.
type Hit struct {
	Hit      bool
	Position r3.Vector
	Normal   r3.Vector
	Material voxel.ID
	Distance float64
}

// Miss returns the result of a traversal that hit nothing.
func Miss() Hit {
	return Hit{
		Normal:   r3.Vector{Y: 1},
		Distance: math.Inf(1),
	}
}

// Method selects the traversal used inside chunks.
type Method int

const (
	MethodOctree Method = iota
	MethodDDA
)

// ParseMethod returns the method with the given name. Unknown names select
// MethodOctree.
func ParseMethod(s string) Method {
	if s == "dda" {
		return MethodDDA
	}
	return MethodOctree
}

func (m Method) String() string {
	if m == MethodDDA {
		return "dda"
	}
	return "octree"
}

func axis(v r3.Vector, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func axisVector(i int, value float64) r3.Vector {
	switch i {
	case 0:
		return r3.Vector{X: value}
	case 1:
		return r3.Vector{Y: value}
	default:
		return r3.Vector{Z: value}
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// dominantAxis returns the axis of the largest absolute component.
func dominantAxis(v r3.Vector) int {
	return int(v.LargestComponent())
}
