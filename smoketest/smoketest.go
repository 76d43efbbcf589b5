// Package smoketest checks that both chunk traversals agree on live data.
package smoketest

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/jera/raytrace"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
)

const (
	DefaultRays = 1000

	// The largest number of rays a run accepts.
	MaxRays = 10000

	// The distance range, in world units, between ray origins and their
	// target voxel.
	minOriginDistance = 1
	maxOriginDistance = 8
)

// Request configures a probe run.
type Request struct {
	Rays int   `json:"rays,omitempty"`
	Seed int64 `json:"seed,omitempty"`
}

// Results summarizes a probe run.
type Results struct {
	Rays             int           `json:"rays"`
	Chunks           int           `json:"chunks"`
	Hits             int           `json:"hits"`
	Mismatches       int           `json:"mismatches"`
	MaxDistanceError float64       `json:"max_distance_error"`
	Duration         time.Duration `json:"duration"`
}

// OK reports whether the traversals agreed on every ray.
func (r Results) OK() bool {
	return r.Mismatches == 0
}

// Probe casts random rays at the non-empty resident chunks and compares the
// grid walk with the octree descent. Rays disagreeing on hit, material or
// distance count as mismatches.
func Probe(v world.View, req Request) Results {
	start := time.Now()

	if req.Rays <= 0 {
		req.Rays = DefaultRays
	}
	req.Rays = min(req.Rays, MaxRays)

	var chunks []*world.Chunk
	v.Range(func(c *world.Chunk) bool {
		if !c.IsEmpty() {
			chunks = append(chunks, c)
		}
		return true
	})
	slices.SortFunc(chunks, func(a, b *world.Chunk) int {
		return a.Position.Compare(b.Position)
	})

	res := Results{Chunks: len(chunks)}
	if len(chunks) == 0 {
		res.Duration = time.Since(start)
		return res
	}

	rnd := rand.New(rand.NewSource(req.Seed))
	for i := 0; i < req.Rays; i++ {
		c := chunks[rnd.Intn(len(chunks))]
		ray, ok := randomRay(rnd, c)
		if !ok {
			continue
		}
		res.Rays++

		dda := raytrace.TraceChunk(ray, c)
		oct := raytrace.TraceChunkOctree(ray, c)
		if dda.Hit {
			res.Hits++
		}

		switch {
		case dda.Hit != oct.Hit, dda.Material != oct.Material:
			res.Mismatches++

		case dda.Hit:
			diff := math.Abs(dda.Distance - oct.Distance)
			res.MaxDistanceError = max(res.MaxDistanceError, diff)
			if diff > raytrace.SurfaceEpsilon {
				res.Mismatches++
			}
		}
	}

	res.Duration = time.Since(start)
	return res
}

func randomRay(rnd *rand.Rand, c *world.Chunk) (raytrace.Ray, bool) {
	min, _ := c.Bounds()
	target := min.Add(r3.Vector{
		X: rnd.Float64() * voxel.ChunkWorldSize,
		Y: rnd.Float64() * voxel.ChunkWorldSize,
		Z: rnd.Float64() * voxel.ChunkWorldSize,
	})

	dir := r3.Vector{
		X: rnd.NormFloat64(),
		Y: rnd.NormFloat64(),
		Z: rnd.NormFloat64(),
	}
	dist := minOriginDistance + rnd.Float64()*(maxOriginDistance-minOriginDistance)

	ray, err := raytrace.NewRay(target.Add(dir.Normalize().Mul(dist)), dir.Mul(-1))
	return ray, err == nil
}

// Options configures the smoke test handler.
type Options struct {
	World *world.World

	// Called with the results of each run.
	SendResult func(context.Context, Results) error
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// HandleSmokeTest starts a probe run in the background. The request body is
// an optional JSON Request with at most MaxRays rays.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if req.Rays < 0 || req.Rays > MaxRays {
			logs.WithTag("rays", req.Rays).
				Debug("smoke test ray count out of range")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			defer func() {
				// Signals tests that the run is over.
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			var res Results
			opts.World.View(func(v world.View) {
				res = Probe(v, req)
			})

			if !res.OK() {
				logs.WithTag("rays", res.Rays).
					WithTag("mismatches", res.Mismatches).
					WithTag("max_distance_error", res.MaxDistanceError).
					Warn(errors.New("chunk traversals disagree"))
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("rays", res.Rays).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusAccepted)
	}
}
