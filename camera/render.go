package camera

import (
	"image"

	"github.com/aukilabs/jera/raytrace"
	"github.com/aukilabs/jera/world"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	skyHorizon = colorful.Color{R: 0.85, G: 0.9, B: 0.95}
	skyZenith  = colorful.Color{R: 0.35, G: 0.55, B: 0.85}

	// Unit direction towards the light.
	lightDir = r3.Vector{X: 0.4, Y: 1, Z: 0.3}.Normalize()
)

const ambient = 0.3

// Render traces one primary ray per pixel against the view and returns the
// shaded image. Surfaces get a fixed directional shade, misses get a sky
// gradient.
func Render(v world.View, c Camera, width, height int, m raytrace.Method) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if width <= 0 || height <= 0 {
		return img
	}

	rays := c.Rays(width, height)
	palette := v.Palette()

	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			ray, err := rays(px, py)
			if err != nil {
				continue
			}

			hit := raytrace.TraceWorld(v, ray, raytrace.MaxDistance, m)
			if !hit.Hit {
				img.Set(px, py, sky(ray.Direction))
				continue
			}

			mat := palette.Material(hit.Material)
			base := colorful.Color{
				R: float64(mat.Color[0]),
				G: float64(mat.Color[1]),
				B: float64(mat.Color[2]),
			}
			shade := ambient + (1-ambient)*max(0, hit.Normal.Dot(lightDir))
			emission := float64(mat.Emission)

			img.Set(px, py, colorful.Color{
				R: base.R*shade + emission,
				G: base.G*shade + emission,
				B: base.B*shade + emission,
			}.Clamped())
		}
	}

	return img
}

func sky(dir r3.Vector) colorful.Color {
	t := min(max(dir.Y, 0), 1)
	return skyHorizon.BlendRgb(skyZenith, t).Clamped()
}
