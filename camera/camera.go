// Package camera turns a viewer pose into primary rays.
package camera

import (
	"math"

	"github.com/aukilabs/jera/raytrace"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

const (
	DefaultFOV = 70
	near       = 0.1
	far        = raytrace.MaxDistance

	// Pitch is kept below the vertical to keep the view basis defined.
	maxPitch = 89
)

var up = mgl64.Vec3{0, 1, 0}

// Camera is a first person camera. Angles are in degrees.
type Camera struct {
	Position r3.Vector
	Yaw      float64
	Pitch    float64
	FOV      float64
}

// New creates a camera at the given position looking down the negative z
// axis.
func New(position r3.Vector) Camera {
	return Camera{
		Position: position,
		Yaw:      -90,
		FOV:      DefaultFOV,
	}
}

// Rotate turns the camera, clamping the pitch.
func (c *Camera) Rotate(yaw, pitch float64) {
	c.Yaw = math.Mod(c.Yaw+yaw, 360)
	c.Pitch = min(max(c.Pitch+pitch, -maxPitch), maxPitch)
}

// Forward returns the unit view direction.
func (c Camera) Forward() r3.Vector {
	f := c.forward()
	return r3.Vector{X: f.X(), Y: f.Y(), Z: f.Z()}
}

func (c Camera) forward() mgl64.Vec3 {
	yaw := mgl64.DegToRad(c.Yaw)
	pitch := mgl64.DegToRad(c.Pitch)

	return mgl64.Vec3{
		math.Cos(yaw) * math.Cos(pitch),
		math.Sin(pitch),
		math.Sin(yaw) * math.Cos(pitch),
	}.Normalize()
}

// ViewProjection returns the matrix projecting world positions to clip space.
func (c Camera) ViewProjection(aspect float64) mgl64.Mat4 {
	fov := c.FOV
	if fov <= 0 {
		fov = DefaultFOV
	}

	eye := mgl64.Vec3{c.Position.X, c.Position.Y, c.Position.Z}
	view := mgl64.LookAtV(eye, eye.Add(c.forward()), up)
	return mgl64.Perspective(mgl64.DegToRad(fov), aspect, near, far).Mul4(view)
}

// Rays returns a generator of the primary rays of a width x height image.
func (c Camera) Rays(width, height int) func(px, py int) (raytrace.Ray, error) {
	inv := c.ViewProjection(float64(width) / float64(height)).Inv()
	origin := c.Position

	return func(px, py int) (raytrace.Ray, error) {
		x := (float64(px)+0.5)/float64(width)*2 - 1
		y := 1 - (float64(py)+0.5)/float64(height)*2

		n := inv.Mul4x1(mgl64.Vec4{x, y, -1, 1})
		f := inv.Mul4x1(mgl64.Vec4{x, y, 1, 1})
		dir := f.Vec3().Mul(1 / f.W()).Sub(n.Vec3().Mul(1 / n.W()))

		return raytrace.NewRay(origin, r3.Vector{X: dir.X(), Y: dir.Y(), Z: dir.Z()})
	}
}
