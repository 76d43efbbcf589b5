package models

import (
	"math"

	"github.com/aukilabs/jera/raytrace"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/golang/geo/r3"
)

// Vector is the wire form of a world position or direction.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func VectorFromR3(v r3.Vector) Vector {
	return Vector{X: v.X, Y: v.Y, Z: v.Z}
}

func (v Vector) R3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// RaycastRequest asks for the first solid voxel along a ray.
type RaycastRequest struct {
	Origin      Vector  `json:"origin"`
	Direction   Vector  `json:"direction"`
	MaxDistance float64 `json:"max_distance,omitempty"`

	// "octree" or "dda". Empty selects the server default.
	Method string `json:"method,omitempty"`
}

// HitResponse is the wire form of a traversal result. Misses carry no
// position, normal or distance.
type HitResponse struct {
	Hit      bool     `json:"hit"`
	Position *Vector  `json:"position,omitempty"`
	Normal   *Vector  `json:"normal,omitempty"`
	Voxel    voxel.ID `json:"voxel,omitempty"`
	Material string   `json:"material,omitempty"`
	Distance float64  `json:"distance,omitempty"`
}

// NewHitResponse converts a traversal result, resolving the material color
// from the palette.
func NewHitResponse(h raytrace.Hit, palette voxel.Palette) HitResponse {
	if !h.Hit || math.IsInf(h.Distance, 0) {
		return HitResponse{}
	}

	pos := VectorFromR3(h.Position)
	normal := VectorFromR3(h.Normal)
	return HitResponse{
		Hit:      true,
		Position: &pos,
		Normal:   &normal,
		Voxel:    h.Material,
		Material: palette.Material(h.Material).Hex(),
		Distance: h.Distance,
	}
}

// Raycast traces the request against the resident chunks of the world.
func Raycast(w *world.World, req RaycastRequest, fallback raytrace.Method) (HitResponse, error) {
	ray, err := raytrace.NewRay(req.Origin.R3(), req.Direction.R3())
	if err != nil {
		return HitResponse{}, err
	}

	method := fallback
	if req.Method != "" {
		method = raytrace.ParseMethod(req.Method)
	}

	maxDistance := req.MaxDistance
	if maxDistance <= 0 || maxDistance > raytrace.MaxDistance {
		maxDistance = raytrace.MaxDistance
	}

	var hit raytrace.Hit
	w.View(func(v world.View) {
		hit = raytrace.TraceWorld(v, ray, maxDistance, method)
	})

	instrumentRaycast(method.String(), hit.Hit)
	return NewHitResponse(hit, w.Materials()), nil
}
