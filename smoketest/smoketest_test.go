package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/jera/terrain"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func newTestWorld(t *testing.T) *world.World {
	w := world.New(world.Config{
		Generator:      terrain.Flat{Height: 1.3, Voxel: voxel.Grass},
		RenderDistance: 1,
		Workers:        2,
	})
	require.NoError(t, w.UpdateAround(context.Background(), r3.Vector{X: 1, Y: 1, Z: 1}))
	require.True(t, w.SetVoxel(r3.Vector{X: 2, Y: 2, Z: 2}, voxel.Stone))
	return w
}

func TestProbe(t *testing.T) {
	w := newTestWorld(t)

	t.Run("traversals agree", func(t *testing.T) {
		var res Results
		w.View(func(v world.View) {
			res = Probe(v, Request{Rays: 300, Seed: 12})
		})

		require.Equal(t, 300, res.Rays)
		require.Equal(t, 18, res.Chunks)
		require.NotZero(t, res.Hits)
		require.True(t, res.OK(), "mismatches: %d", res.Mismatches)
		require.LessOrEqual(t, res.MaxDistanceError, 1e-3)
	})

	t.Run("ray count is capped", func(t *testing.T) {
		var res Results
		w.View(func(v world.View) {
			res = Probe(v, Request{Rays: MaxRays * 10, Seed: 1})
		})
		require.Equal(t, MaxRays, res.Rays)
	})

	t.Run("empty world", func(t *testing.T) {
		empty := world.New(world.Config{})
		empty.View(func(v world.View) {
			res := Probe(v, Request{})
			require.Zero(t, res.Rays)
			require.True(t, res.OK())
		})
	})
}

func TestSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var gotResult bool
		smokeTest := HandleSmokeTest(ctx, Options{
			World: newTestWorld(t),
			SendResult: func(_ context.Context, res Results) error {
				require.Equal(t, 50, res.Rays)
				require.True(t, res.OK())
				gotResult = true
				return nil
			},
		})

		req := httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(`{"rays":50,"seed":3}`))
		rec := httptest.NewRecorder()
		smokeTest(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)

		<-ctx.Done()
		require.True(t, gotResult)
	})

	t.Run("bad request", func(t *testing.T) {
		smokeTest := HandleSmokeTest(context.Background(), Options{})

		for _, body := range []string{
			`{`,
			`{"rays":1000000000}`,
			`{"rays":10001}`,
			`{"rays":-1}`,
		} {
			req := httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			smokeTest(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})
}
